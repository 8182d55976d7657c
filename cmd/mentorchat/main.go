package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mentorchat/internal/app"
	"mentorchat/internal/config"
	"mentorchat/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	issueToken := flag.String("issue-token", "", "issue a bearer token for USER[:ROLE] and exit")
	seedConnection := flag.String("seed-connection", "", "create a connection for USERA,USERB and exit")
	seedCommunity := flag.String("seed-community", "", "create a community for ID,NAME and exit")
	addMember := flag.String("add-member", "", "add COMMUNITY,USER,ROLE to a community and exit")
	flag.Parse()

	cfg := config.LoadConfigWithPrecedence(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if *issueToken != "" || *seedConnection != "" || *seedCommunity != "" || *addMember != "" {
		err := runAdminCommand(application, *issueToken, *seedConnection, *seedCommunity, *addMember)
		stopErr := application.Stop(context.Background())
		if err != nil {
			log.Fatalf("Command failed: %v", err)
		}
		if stopErr != nil {
			log.Fatalf("Shutdown failed: %v", stopErr)
		}
		return
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v", sig)
	}

	if err := application.Stop(context.Background()); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}

// runAdminCommand executes one seeding or token command. These exist so a
// deployment can be exercised without the external mentorship services.
func runAdminCommand(application *app.Application, issueToken, seedConnection, seedCommunity, addMember string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case issueToken != "":
		userID, role := issueToken, "member"
		if i := strings.IndexByte(issueToken, ':'); i >= 0 {
			userID, role = issueToken[:i], issueToken[i+1:]
		}
		token, err := application.Auth().Issue(userID, role)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil

	case seedConnection != "":
		parts := strings.Split(seedConnection, ",")
		if len(parts) != 2 {
			return fmt.Errorf("-seed-connection expects USERA,USERB")
		}
		conn := &types.Connection{
			ID:           uuid.New().String(),
			ParticipantA: strings.TrimSpace(parts[0]),
			ParticipantB: strings.TrimSpace(parts[1]),
			CreatedAt:    time.Now().UTC(),
		}
		if err := application.Store().CreateConnection(ctx, conn); err != nil {
			return err
		}
		fmt.Println(conn.ID)
		return nil

	case seedCommunity != "":
		parts := strings.SplitN(seedCommunity, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("-seed-community expects ID,NAME")
		}
		community := &types.Community{
			ID:   strings.TrimSpace(parts[0]),
			Name: strings.TrimSpace(parts[1]),
		}
		return application.Store().CreateCommunity(ctx, community)

	case addMember != "":
		parts := strings.Split(addMember, ",")
		if len(parts) != 3 {
			return fmt.Errorf("-add-member expects COMMUNITY,USER,ROLE")
		}
		return application.Store().AddCommunityMember(ctx,
			strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]))
	}

	return nil
}
