package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aihub/classroom-rag/app/bootstrap"
	"github.com/aihub/classroom-rag/internal/logger"
	"github.com/aihub/classroom-rag/internal/services"
	"go.uber.org/zap"
)

func main() {
	classroomID := flag.Uint("classroom", 0, "Target classroom ID")
	userID := flag.Uint("user", 0, "Uploading teacher's user ID")
	file := flag.String("file", "", "Path of the document to ingest")
	syllabus := flag.Bool("syllabus", false, "Generate the topic syllabus after ingestion")
	flag.Parse()

	if *classroomID == 0 || *userID == 0 || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", *file, err)
	}

	if err := run(uint(*classroomID), uint(*userID), *file, data, *syllabus); err != nil {
		logger.Error("ingestion failed", zap.String("file", *file), zap.Error(err))
		os.Exit(1)
	}
}

func run(classroomID, userID uint, path string, data []byte, syllabus bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Init(ctx, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Shutdown()

	user, err := app.Services.Users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	actor := services.Actor{UserID: user.UserID, Role: user.Role}

	doc, err := app.Services.Ingestion.Upload(ctx, services.UploadRequest{
		Actor:       actor,
		ClassroomID: classroomID,
		Filename:    filepath.Base(path),
		Data:        data,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Document %d ingested: %d chunks\n", doc.DocumentID, doc.ChunkCount)

	if !syllabus {
		return nil
	}
	topics, err := app.Services.Syllabus.Generate(ctx, actor, doc.DocumentID)
	if err != nil {
		return fmt.Errorf("syllabus for document %d: %w", doc.DocumentID, err)
	}
	fmt.Printf("Syllabus (%d topics):\n", len(topics))
	for i, topic := range topics {
		fmt.Printf("  %d. %s\n", i+1, topic)
	}
	return nil
}
