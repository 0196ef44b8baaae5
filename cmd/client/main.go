package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat_session/internal/client"
	"chat_session/internal/domain"
	"chat_session/pkg/logger"

	"github.com/gookit/color"
)

const heartbeatInterval = 28 * time.Second

func main() {
	gatewayURL := flag.String("url", "ws://localhost:8080/ws", "gateway websocket URL")
	token := flag.String("token", "", "access token")
	userID := flag.String("user", "", "user id (must match the token subject)")
	username := flag.String("name", "", "display name")
	room := flag.String("room", "", "room to join on start")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *token == "" || *userID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "usage: client -token <jwt> -user <id> -name <username> [-room <id>]")
		os.Exit(1)
	}

	appLogger := logger.New(*logLevel)
	session := client.NewSessionManager(*userID)
	transport := client.NewTransport(*gatewayURL, *token, *username, session, heartbeatInterval, appLogger)

	transport.OnStateChange = func(connected bool) {
		if connected {
			color.Green.Println("* connected")
		} else {
			color.Red.Println("* connection lost, reconnecting...")
		}
	}
	transport.OnEvent = func(ev domain.ServerEvent) { render(session, ev) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = transport.Run(ctx) }()

	if *room != "" {
		// The transport replays the join once the dial completes.
		session.OpenRoom(*room, *room)
	}

	go readInput(transport, session)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	color.Gray.Println("bye")
}

func readInput(transport *client.Transport, session *client.SessionManager) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			active := session.ActiveRoom()
			if active == "" {
				color.Yellow.Println("no active room, /join one first")
				continue
			}
			if err := transport.SendChat(active, line); err != nil {
				color.Red.Printf("send failed: %v\n", err)
			}
			continue
		}

		parts := strings.Fields(line)
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		var err error
		switch parts[0] {
		case "/join":
			err = transport.JoinRoom(arg, arg)
		case "/leave":
			if arg == "" {
				arg = session.ActiveRoom()
			}
			err = transport.LeaveRoom(arg)
		case "/switch":
			session.SetActiveRoom(arg)
			printTabs(session)
		case "/rooms":
			printTabs(session)
		case "/members":
			err = transport.RequestMembers(session.ActiveRoom())
		case "/kick":
			err = transport.StartVoteKick(session.ActiveRoom(), arg)
		case "/vote":
			err = transport.CastVote(session.ActiveRoom(), arg)
		case "/status":
			err = transport.UpdatePresence(arg)
		default:
			color.Yellow.Printf("unknown command %s\n", parts[0])
		}
		if err != nil {
			color.Red.Printf("error: %v\n", err)
		}
	}
}

func render(session *client.SessionManager, ev domain.ServerEvent) {
	switch ev := ev.(type) {
	case domain.RoomJoined:
		color.Green.Printf("* joined %s (%d members)\n", ev.RoomID, len(ev.Members))
	case domain.ChatBroadcast:
		if ev.RoomID == session.ActiveRoom() {
			color.Cyan.Printf("[%s] ", ev.RoomID)
			fmt.Printf("%s: %s\n", ev.Username, ev.Message)
		}
	case domain.ChatHistory:
		for _, message := range ev.Messages {
			color.Gray.Printf("[%s] %s: %s\n", ev.RoomID, message.SenderUsername, message.Body)
		}
	case domain.RoomUserJoined:
		color.Green.Printf("* %s joined %s\n", ev.User.Username, ev.RoomID)
	case domain.RoomUserLeft:
		color.Yellow.Printf("* %s left %s\n", ev.Username, ev.RoomID)
	case domain.RoomForcedLeave:
		color.Red.Printf("* removed from %s (%s), /join to return\n", ev.RoomID, ev.Reason)
	case domain.SystemMessage:
		color.Magenta.Printf("[%s] %s\n", ev.RoomID, ev.Message)
	case domain.RoomMembersUpdated:
		names := make([]string, 0, len(ev.Members))
		for _, member := range ev.Members {
			names = append(names, member.Username)
		}
		color.Cyan.Printf("* %s members: %s\n", ev.RoomID, strings.Join(names, ", "))
	case domain.PresenceUpdated:
		color.Gray.Printf("* %s is now %s\n", ev.Username, ev.Status)
	case domain.ErrorEvent:
		color.Red.Printf("! %s: %s\n", ev.Code, ev.Message)
	}
}

func printTabs(session *client.SessionManager) {
	active := session.ActiveRoom()
	for _, tab := range session.Tabs() {
		marker := " "
		if tab.RoomID == active {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, tab.DisplayName)
		if tab.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d unread)", tab.UnreadCount)
		}
		if !tab.Joined {
			line += " [offline]"
		}
		fmt.Println(line)
	}
}
