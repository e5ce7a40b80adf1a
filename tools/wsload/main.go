package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	"github.com/gorilla/websocket"
)

// wsload opens many concurrent gateway connections, runs the handshake
// and a few commands on each, and reports what came back.
func main() {
	url := flag.String("url", "ws://localhost:8090/ws", "Gateway websocket URL")
	clients := flag.Int("clients", 10, "Number of concurrent connections")
	duration := flag.Duration("duration", 30*time.Second, "How long to listen")
	token := flag.String("token", "", "Auth token")
	flag.Parse()

	var received, telemetry, alerts int64
	var wg sync.WaitGroup

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runClient(*url, *token, n, *duration, &received, &telemetry, &alerts); err != nil {
				log.Printf("client %d: %v", n, err)
			}
		}(i)
		time.Sleep(50 * time.Millisecond)
	}

	wg.Wait()
	fmt.Printf("received %d messages total (%d telemetry, %d alerts) across %d clients\n",
		atomic.LoadInt64(&received), atomic.LoadInt64(&telemetry), atomic.LoadInt64(&alerts), *clients)
}

func runClient(url, token string, n int, duration time.Duration, received, telemetry, alerts *int64) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	send := func(msgType, deviceID string, payload interface{}) error {
		env, err := protocol.New(msgType, deviceID, payload)
		if err != nil {
			return err
		}
		frame, err := protocol.Encode(env)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, frame)
	}

	if err := send(protocol.TypeAuth, "", protocol.AuthData{Token: token}); err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}
	if err := send(protocol.TypePing, "", protocol.PingData{Timestamp: protocol.Now()}); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if err := send(protocol.TypeDeviceCommand, fmt.Sprintf("load-device-%d", n), protocol.CommandData{
		Command: "status",
	}); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		if err != nil {
			break
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		atomic.AddInt64(received, 1)
		switch env.Type {
		case protocol.TypeTelemetry:
			atomic.AddInt64(telemetry, 1)
		case protocol.TypeAlert:
			atomic.AddInt64(alerts, 1)
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return nil
}
