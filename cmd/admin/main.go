package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"matcha/backend/internal/complaint"
	"matcha/backend/internal/config"
	"matcha/backend/internal/models"
	"matcha/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

  ban <user or anon id> [duration]   ban (default 24h)
  unban <user or anon id>            lift a ban
  confirm-report <report id>         confirm a report, rewarding the reporter
  close-open-sessions                close sessions left open by a crash
  online                             list users flagged online`

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("invalid logger configuration")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis holds ban flags for anonymous ids; without it only account
	// fields are updated.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis unavailable, ban flags will not be written")
		rdb = nil
	}

	s := storage.NewStorageService(db, rdb, log)
	if err := run(ctx, s, complaint.NewService(s), os.Args[1:]); err != nil {
		log.WithError(err).Fatal(os.Args[1] + " failed")
	}
}

func run(ctx context.Context, s *storage.Service, svc *complaint.Service, args []string) error {
	switch args[0] {
	case "ban":
		if len(args) < 2 {
			return fmt.Errorf("usage: admin ban <user or anon id> [duration]")
		}
		var d time.Duration
		if len(args) > 2 {
			var err error
			if d, err = time.ParseDuration(args[2]); err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[2], err)
			}
		}
		ban, err := svc.BanUser(ctx, args[1], d)
		if err != nil {
			return err
		}
		fmt.Printf("%s is banned until %s.\n", args[1], ban.Until.Format(time.RFC3339))

	case "unban":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin unban <user or anon id>")
		}
		if err := svc.Unban(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s has been unbanned.\n", args[1])

	case "confirm-report":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin confirm-report <report id>")
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid report id %q", args[1])
		}
		if err := svc.ConfirmReport(ctx, uint(id)); err != nil {
			return err
		}
		fmt.Printf("Report %d has been confirmed.\n", id)

	case "close-open-sessions":
		n, err := s.CloseOpenSessions(ctx, time.Now(), models.EndReasonShutdown)
		if err != nil {
			return err
		}
		fmt.Printf("Closed %d open sessions.\n", n)

	case "online":
		ids, err := s.OnlineUserIDs(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d online: %s\n", len(ids), strings.Join(ids, ", "))

	default:
		fmt.Println(usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
