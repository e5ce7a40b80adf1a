package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/controlhub/realtime-gateway/internal/client"
	"github.com/controlhub/realtime-gateway/internal/protocol"
	"go.uber.org/zap"
)

// monitor tails a gateway from the terminal: prints every envelope,
// styles alerts by severity and shows the Online/Offline transitions
// the dashboard status indicator would.
func main() {
	url := flag.String("url", "ws://localhost:8090/ws", "Gateway websocket URL")
	token := flag.String("token", "", "Auth token")
	topic := flag.String("topic", "", "Subscribe to a single topic (telemetry or alerts)")
	baseDelay := flag.Duration("base-delay", time.Second, "Reconnect base delay")
	maxDelay := flag.Duration("max-delay", 30*time.Second, "Reconnect delay ceiling")
	maxAttempts := flag.Int("max-attempts", 5, "Reconnect attempts before giving up")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	done := make(chan struct{})

	c := client.New(client.Options{
		URL:          *url,
		Token:        *token,
		BaseDelay:    *baseDelay,
		MaxDelay:     *maxDelay,
		MaxAttempts:  *maxAttempts,
		PingInterval: 30 * time.Second,
	}, client.Callbacks{
		OnMessage: printEnvelope,
		OnStatusChange: func(connected bool) {
			if connected {
				fmt.Println("--- Online ---")
			} else {
				fmt.Println("--- Offline ---")
			}
		},
		OnAlert: printAlert,
		OnGiveUp: func() {
			fmt.Println("!!! connection lost for good, restart the monitor to retry")
			close(done)
		},
	}, logger)

	if err := c.Connect(); err != nil {
		log.Printf("Initial connect failed, retrying: %v", err)
	}

	if *topic != "" {
		if err := c.Subscribe(*topic); err != nil {
			log.Printf("Subscribe failed: %v", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
	case <-done:
	}
	c.Disconnect()
}

func printEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeTelemetry:
		var data protocol.TelemetryData
		if err := protocol.DecodeData(env, &data); err != nil {
			return
		}
		fmt.Printf("[%s] %-20s temp=%s hum=%s power=%s\n",
			env.Timestamp, env.DeviceID,
			num(data.Temperature), num(data.Humidity), num(data.Power))
	case protocol.TypeAlert:
		// Rendered by printAlert.
	case protocol.TypeConnection:
		var data protocol.ConnectionData
		if err := protocol.DecodeData(env, &data); err == nil {
			fmt.Printf("[%s] connected as %s\n", env.Timestamp, data.ClientID)
		}
	case protocol.TypeAuthSuccess:
		fmt.Printf("[%s] authenticated\n", env.Timestamp)
	case protocol.TypeDeviceUpdate:
		fmt.Printf("[%s] device update: %s %s\n", env.Timestamp, env.DeviceID, string(env.Data))
	}
}

func printAlert(alert protocol.AlertData) {
	marker := "*"
	switch alert.Severity {
	case protocol.SeverityCritical:
		marker = "!!!"
	case protocol.SeverityHigh:
		marker = "!!"
	case protocol.SeverityMedium:
		marker = "!"
	}
	fmt.Printf("%s [%s] %s: %s\n", marker, strings.ToUpper(alert.Severity), alert.Type, alert.Message)
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
