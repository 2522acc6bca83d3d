// Command viewer polls the gateway's debug /stats endpoint and renders
// the live presence table in the terminal. Handy while poking the
// server with several websocket clients at once.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type stats struct {
	OnlineUsers      int       `json:"online_users"`
	BufferedMessages int       `json:"buffered_messages"`
	Sessions         []session `json:"sessions"`
}

type session struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Connections int    `json:"connections"`
	InCall      bool   `json:"inCall"`
	CallID      string `json:"callId"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8081", "Debug server address")
	interval := flag.Duration("interval", 2*time.Second, "Polling interval")
	watch := flag.Bool("watch", false, "Keep polling instead of printing once")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}
	for {
		if err := printStats(client, *addr); err != nil {
			color.Red.Printf("Error: %v\n", err)
			if !*watch {
				os.Exit(1)
			}
		}
		if !*watch {
			return
		}
		time.Sleep(*interval)
	}
}

func printStats(client *http.Client, addr string) error {
	resp, err := client.Get(addr + "/stats")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var s stats
	if err = json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return fmt.Errorf("decoding stats failed: %w", err)
	}

	color.Green.Printf("%s  online: %d  buffered messages: %d\n",
		time.Now().Format("15:04:05"), s.OnlineUsers, s.BufferedMessages)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User ID", "Display Name", "Connections", "In Call", "Call ID"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, row := range s.Sessions {
		inCall := "-"
		if row.InCall {
			inCall = color.Yellow.Sprint("yes")
		}
		callID := row.CallID
		if len(callID) > 8 {
			callID = callID[:8]
		}
		table.Append([]string{
			row.UserID,
			row.DisplayName,
			strconv.Itoa(row.Connections),
			inCall,
			callID,
		})
	}
	table.Render()
	fmt.Println()
	return nil
}
