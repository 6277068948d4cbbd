package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"pairup/backend/internal/api/handler"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"
	"pairup/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const usage = `Usage: admin <command> [args]

Commands:
  active-rooms                            list rooms still marked active
  close-room <room_id>                    mark a room history row as ended
  block <user_id> <blocked_user_id>       never pair the two users
  unblock <user_id> <blocked_user_id>     remove a block
  token <user_id>                         issue a connection token linked to a user`

// adminStore is the part of storage the CLI needs.
type adminStore interface {
	GetActiveRoomHistories() ([]models.RoomHistory, error)
	CloseRoomHistory(roomID string) error
	BlockUser(userID, blockedID string) error
	UnblockUser(userID, blockedID string) error
	GetUserByID(userID string) (*models.User, error)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil, nil) // No redis needed for admin CLI

	if err := runCommand(storageSvc, cfg, os.Args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runCommand(s adminStore, cfg *config.Config, args []string) error {
	switch args[0] {
	case "active-rooms":
		return listActiveRooms(s, os.Stdout)
	case "close-room":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin close-room <room_id>")
		}
		if err := s.CloseRoomHistory(args[1]); err != nil {
			return err
		}
		fmt.Printf("Room %s has been closed.\n", args[1])
	case "block":
		if len(args) != 3 {
			return fmt.Errorf("usage: admin block <user_id> <blocked_user_id>")
		}
		if err := s.BlockUser(args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("User %s will not be paired with %s.\n", args[1], args[2])
	case "unblock":
		if len(args) != 3 {
			return fmt.Errorf("usage: admin unblock <user_id> <blocked_user_id>")
		}
		if err := s.UnblockUser(args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("User %s has unblocked %s.\n", args[1], args[2])
	case "token":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin token <user_id>")
		}
		user, err := s.GetUserByID(args[1])
		if err != nil {
			return err
		}
		token, err := handler.GenerateToken([]byte(cfg.JWTSecret), uuid.New().String(), user.ID, cfg.JWTExpiry)
		if err != nil {
			return err
		}
		fmt.Println(token)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
	return nil
}

func listActiveRooms(s adminStore, out io.Writer) error {
	rooms, err := s.GetActiveRoomHistories()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROOM\tUSER 1\tUSER 2\tSTARTED\tAGE")
	for _, r := range rooms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.RoomID,
			displayParticipant(r.User1ID, r.User1ConnID),
			displayParticipant(r.User2ID, r.User2ConnID),
			r.StartedAt.Format(time.RFC3339),
			time.Since(r.StartedAt).Round(time.Second),
		)
	}
	return w.Flush()
}

func displayParticipant(userID, connID string) string {
	if userID != "" {
		return userID
	}
	return "anon:" + connID
}
