package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/solistry/auth-service/app"
)

func main() {
	runtime, err := app.Build(app.Options{LoadDotEnv: true})
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Printf("shutdown: %v", closeErr)
		}
	}()

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	log.Printf("auth service listening on :%s", port)
	if err := http.ListenAndServe(":"+port, runtime.Handler); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
