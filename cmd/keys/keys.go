package keys

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"strategyvault/src/database"
	"strategyvault/src/model"
	"strategyvault/src/repository"
)

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                             Show this help message")
	fmt.Println("  shutdown                         Exit the application")
	fmt.Println("  issue ADDRESS [ROLE]             Issue a new API key (role: executor or owner)")
	fmt.Println("  activate ADDRESS                 Re-enable a principal")
	fmt.Println("  deactivate ADDRESS               Disable a principal without deleting it")
	fmt.Println("  list                             List active principals")
	fmt.Println()
}

type CLI struct {
}

// Run is the interactive key-management console. The plaintext API key is
// printed exactly once at issuance; only its bcrypt hash is stored.
func (t *CLI) Run() error {
	config := GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	keyRepo := repository.NewExecutorKeyRepository()

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	for {
		fmt.Print("cmd> ")

		if !reader.Scan() {
			return nil
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, " ")
		cmd := parts[0]

		switch cmd {

		case "shutdown":
			fmt.Println("Exiting CLI...")
			return nil

		case "help":
			printUsage()

		case "issue":
			if len(parts) < 2 {
				printUsage()
				continue
			}
			address := parts[1]

			role := model.RoleExecutor
			if len(parts) > 2 {
				role = parts[2]
			}
			if role != model.RoleExecutor && role != model.RoleOwner {
				fmt.Println("Unknown role:", role)
				continue
			}

			raw := make([]byte, config.KeyBytes)
			if _, err := rand.Read(raw); err != nil {
				logger.WithError(err).Error("Failed to generate key material")
				continue
			}
			apiKey := hex.EncodeToString(raw)

			hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), config.BcryptCost)
			if err != nil {
				logger.WithError(err).Error("Failed to hash API key")
				continue
			}

			record := &model.ExecutorKey{
				Address:    address,
				Role:       role,
				APIKeyHash: string(hash),
				Active:     true,
			}
			if err := keyRepo.Upsert(ctx, record); err != nil {
				logger.WithError(err).Error("Failed to store executor key")
				continue
			}

			fmt.Printf("API key for %s (%s), shown once:\n%s\n", address, role, apiKey)

		case "activate", "deactivate":
			if len(parts) < 2 {
				printUsage()
				continue
			}
			address := parts[1]

			if err := keyRepo.SetActive(ctx, address, cmd == "activate"); err != nil {
				logger.WithError(err).Error("Failed to update principal")
				continue
			}
			fmt.Printf("%s %sd\n", address, cmd)

		case "list":
			active, err := keyRepo.FindActive(ctx)
			if err != nil {
				logger.WithError(err).Error("Failed to list principals")
				continue
			}
			for _, k := range active {
				fmt.Printf("%s  %s\n", k.Address, k.Role)
			}

		default:
			fmt.Println("Unknown command:", cmd)
			printUsage()
		}
	}
}
