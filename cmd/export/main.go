package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"plstudy/internal/config"
	"plstudy/internal/database"
	"plstudy/internal/repository"
	"plstudy/internal/service"
)

func main() {
	xlsxCmd := flag.NewFlagSet("xlsx", flag.ExitOnError)
	xlsxOutput := xlsxCmd.String("output", "", "Output file path (default: export_YYYYMMDD_HHMMSS.xlsx)")

	csvCmd := flag.NewFlagSet("csv", flag.ExitOnError)
	csvDir := csvCmd.String("dir", "export", "Output directory for the CSV files")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()

	// Connect to MongoDB
	db, err := database.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	participantRepo := repository.NewParticipantRepository(db)
	exportService := service.NewExportService(participantRepo)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "xlsx":
		xlsxCmd.Parse(os.Args[2:])
		path := *xlsxOutput
		if path == "" {
			path = fmt.Sprintf("export_%s.xlsx", time.Now().Format("20060102_150405"))
		}
		if err := exportService.ExportXLSX(ctx, path); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("Workbook written to %s", path)

	case "csv":
		csvCmd.Parse(os.Args[2:])
		if err := exportService.ExportCSV(ctx, *csvDir); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		log.Printf("CSV tables written to %s/", *csvDir)

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: export <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  xlsx    Write all response tables as one workbook")
	fmt.Println("  csv     Write each response table as a CSV file")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  xlsx -output <file>")
	fmt.Println("  csv  -dir <directory>")
}
