// agectl drives one verification flow against a running age-gate server
// from the terminal. It renders the pairing URI as a QR code and deep link,
// then acts as a manual relay: the operator pastes the connection ID once
// the identity app approves, and pastes the returned presentation when it
// arrives. Useful for exercising the full protocol without a browser.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/mdp/qrterminal/v3"

	"agegate/internal/platform/config"
	"agegate/internal/platform/logger"
	"agegate/internal/verification/flow"
	"agegate/internal/verification/gateway"
	"agegate/internal/verification/models"
	"agegate/internal/verification/peer"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "age-gate server base URL")
	suspending := flag.Bool("background-suspending", false, "simulate a platform that suspends backgrounded sockets")
	flag.Parse()

	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stdin := bufio.NewScanner(os.Stdin)
	stdin.Buffer(make([]byte, 1024*1024), 1024*1024)

	hints := models.PlatformHints{BackgroundSuspending: *suspending}

	adapter := peer.NewAdapter(func(context.Context) (peer.Client, error) {
		return &manualClient{stdin: stdin}, nil
	}, config.DeepLinkScheme,
		peer.WithLogger(log),
		peer.WithHints(hints),
	)

	server := gateway.New(gateway.Config{BaseURL: *serverURL})

	machine := flow.NewMachine(adapter, server,
		flow.WithLogger(log),
		flow.WithHints(hints),
		flow.WithStateListener(func(s flow.State) {
			fmt.Printf("state: %s\n", s)
		}),
		flow.WithPairingListener(func(info flow.PairingInfo) {
			fmt.Println("scan with the identity app:")
			qrterminal.GenerateHalfBlock(info.URI, qrterminal.L, os.Stdout)
			fmt.Printf("pairing uri: %s\n", info.URI)
			fmt.Printf("deep link:   %s\n", info.DeepLink)
		}),
	)

	if err := machine.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}

	result := machine.Result()
	fmt.Printf("verified, anchor hash %s\n", result.AnchorHash)
}

// manualClient is a peer transport where the operator relays messages by
// hand. It generates a well-formed pairing URI and reads the peer's
// responses from stdin.
type manualClient struct {
	stdin *bufio.Scanner
}

func (c *manualClient) Connect(context.Context) (*peer.Pairing, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	topic := strings.ReplaceAll(uuid.NewString(), "-", "")
	uri := fmt.Sprintf("wc:%s@2?relay-protocol=irn&symKey=%s", topic, hex.EncodeToString(key))

	return &peer.Pairing{
		URI: uri,
		Approval: func(ctx context.Context) (string, error) {
			line, err := c.prompt(ctx, "connection id once the app approves")
			if err != nil {
				return "", err
			}
			return line, nil
		},
	}, nil
}

func (c *manualClient) Request(ctx context.Context, connectionID string, payload any) (json.RawMessage, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	fmt.Printf("relay this request to %s:\n%s\n", connectionID, encoded)

	line, err := c.prompt(ctx, "presentation JSON from the identity app")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(line), nil
}

func (c *manualClient) ActiveTopics() []string {
	return nil
}

func (c *manualClient) Disconnect(context.Context, string) error {
	return nil
}

func (c *manualClient) Connected() bool {
	return true
}

// prompt reads one non-empty line, honoring cancellation between reads.
func (c *manualClient) prompt(ctx context.Context, what string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Printf("paste %s: ", what)
		if !c.stdin.Scan() {
			if err := c.stdin.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("stdin closed")
		}
		if line := strings.TrimSpace(c.stdin.Text()); line != "" {
			return line, nil
		}
	}
}
