package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"firefly-live/internal/auth"
)

var (
	wsURL    = flag.String("url", "ws://localhost:8080/imserver", "websocket endpoint")
	viewers  = flag.Int("viewers", 200, "concurrent viewer connections")
	senders  = flag.Int("senders", 20, "authenticated senders among the viewers")
	msgCount = flag.Int("messages", 20, "danmu messages per sender")
	videoID  = flag.Int64("video", 7, "target video id")
)

func main() {
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	tokens := auth.NewService(secret)

	log.Printf("starting flood: %d viewers, %d senders, %d msgs each", *viewers, *senders, *msgCount)
	var wg sync.WaitGroup
	for i := 0; i < *viewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runViewer(tokens, n, n < *senders)
		}(i)
	}
	wg.Wait()
	log.Println("flood complete")
}

func runViewer(tokens *auth.Service, n int, sends bool) {
	url := *wsURL
	if sends {
		token, err := tokens.Issue(int64(n + 1))
		if err != nil {
			log.Printf("token issue failed [%d]: %v", n, err)
			return
		}
		url = fmt.Sprintf("%s?token=%s", url, token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("connect failed [%d]: %v", n, err)
		return
	}
	defer conn.Close()

	// Drain inbound frames so the server's write pump never stalls on us.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !sends {
		// Pure viewer: hold the connection open for the duration of the run.
		time.Sleep(time.Duration(*msgCount) * 50 * time.Millisecond)
		return
	}

	for i := 0; i < *msgCount; i++ {
		msg := map[string]any{
			"videoId": *videoID,
			"content": fmt.Sprintf("flood msg %d from sender %d", i, n),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("send failed [%d]: %v", n, err)
			return
		}
		// Small sleep to prevent an instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("sender %d finished %d msgs", n, *msgCount)
}
