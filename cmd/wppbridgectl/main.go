package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/client"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/session"
	"github.com/mdp/qrterminal"
)

func main() {
	addrFlag := flag.String("addr", envOr("WPPBRIDGE_ADDR", "127.0.0.1:3000"), "daemon address")
	keyFlag := flag.String("api-key", os.Getenv("WPPBRIDGE_AUTH_API_KEY"), "API key sent as X-Api-Key")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "config" {
		cmdConfig(args[1:])
		return
	}

	c := client.New(*addrFlag, *keyFlag)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "sessions":
		cmdSessions(ctx, c, *jsonFlag)
	case "status":
		need(args, 2, "status <session>")
		cmdStatus(ctx, c, args[1], *jsonFlag)
	case "connect":
		need(args, 2, "connect <session>")
		cmdConnect(ctx, c, args[1], *jsonFlag)
	case "qr":
		need(args, 2, "qr <session>")
		cmdQR(ctx, c, args[1], *jsonFlag)
	case "pair":
		need(args, 3, "pair <session> <phone>")
		cmdPair(ctx, c, args[1], args[2], *jsonFlag)
	case "send":
		need(args, 4, "send <session> <chat> <text...>")
		cmdSend(ctx, c, args[1], args[2], strings.Join(args[3:], " "), *jsonFlag)
	case "logout":
		need(args, 2, "logout <session>")
		check(c.Logout(ctx, args[1]))
		fmt.Printf("Session %s logged out.\n", args[1])
	case "delete":
		need(args, 2, "delete <session>")
		check(c.Delete(ctx, args[1]))
		fmt.Printf("Session %s deleted.\n", args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wppbridgectl [--addr host:port] [--api-key key] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  sessions                      List sessions")
	fmt.Fprintln(os.Stderr, "  status <session>              Show session status")
	fmt.Fprintln(os.Stderr, "  connect <session>             Create or reconnect a session")
	fmt.Fprintln(os.Stderr, "  qr <session>                  Print the login QR code")
	fmt.Fprintln(os.Stderr, "  pair <session> <phone>        Request a pairing code")
	fmt.Fprintln(os.Stderr, "  send <session> <chat> <text>  Send a text message")
	fmt.Fprintln(os.Stderr, "  logout <session>              Unlink the device")
	fmt.Fprintln(os.Stderr, "  delete <session>              Log out and remove session data")
	fmt.Fprintln(os.Stderr, "  config init [--data-dir dir]  Write a default config.toml")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: wppbridgectl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func cmdSessions(ctx context.Context, c *client.Client, jsonOut bool) {
	list, err := c.Sessions(ctx)
	check(err)
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No sessions.")
		return
	}
	for _, s := range list {
		fmt.Printf("%-20s %-12s %s\n", s.SessionID, s.Status, s.PhoneNumber)
	}
}

func cmdStatus(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	info, err := c.Status(ctx, id)
	check(err)
	if jsonOut {
		outputJSON(info)
		return
	}
	printInfo(info)
}

func cmdConnect(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	msg, info, err := c.Connect(ctx, id)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		fmt.Println(msg)
		return
	}
	check(err)
	if jsonOut {
		outputJSON(info)
		return
	}
	fmt.Println(msg)
	printInfo(info)
}

func cmdQR(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	qr, err := c.QR(ctx, id)
	check(err)
	if jsonOut {
		outputJSON(qr)
		return
	}
	qrterminal.GenerateHalfBlock(qr.Code, qrterminal.L, os.Stdout)
	fmt.Println("Scan with WhatsApp > Linked devices.")
}

func cmdPair(ctx context.Context, c *client.Client, id, phone string, jsonOut bool) {
	res, err := c.Pair(ctx, id, phone)
	check(err)
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Pairing code for %s: %s\n", res.PhoneNumber, res.PairingCode)
}

func cmdSend(ctx context.Context, c *client.Client, id, chat, text string, jsonOut bool) {
	res, err := c.SendText(ctx, id, chat, text)
	check(err)
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Sent %s to %s\n", res.MessageID, res.ChatID)
}

func cmdConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprintln(os.Stderr, "usage: wppbridgectl config init [--data-dir dir] [--force]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("config init", flag.ExitOnError)
	dataDir := fs.String("data-dir", config.DefaultDataDir(), "data directory")
	force := fs.Bool("force", false, "overwrite an existing config.toml")
	_ = fs.Parse(args[1:])

	path := session.Paths{Root: *dataDir}.ConfigFile()
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "error: %s already exists (use --force)\n", path)
		os.Exit(1)
	}
	check(config.Save(path, config.Default(*dataDir)))
	fmt.Printf("Wrote %s\n", path)
}

func printInfo(info session.Info) {
	fmt.Printf("Session: %s\n", info.SessionID)
	fmt.Printf("Status:  %s\n", info.Status)
	if info.PhoneNumber != "" {
		fmt.Printf("Phone:   %s\n", info.PhoneNumber)
	}
	if info.Name != "" {
		fmt.Printf("Name:    %s\n", info.Name)
	}
	if info.PairCode != "" {
		fmt.Printf("Pair:    %s\n", info.PairCode)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
