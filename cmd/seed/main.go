package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/nexe/nexe-backend/internal/db"
)

func main() {
	yes := flag.Bool("y", false, "import without asking for confirmation")
	sheet := flag.String("sheet", "", "sheet to read (default CATALOG_SHEET, then the first sheet)")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run cmd/seed/main.go [-y] [-sheet name] <xlsx_file_path>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if *sheet == "" {
		*sheet = cfg.Catalog.SheetName
	}

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("Failed to open XLSX:", err)
	}
	defer f.Close()

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	inputs, err := service.ReadCatalogSheet(f, *sheet)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Total products to import: %d\n", len(inputs))

	if !*yes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	productService := service.NewProductService(repository.NewProductRepository(db.GetDB()))
	imported, err := productService.ImportProducts(context.Background(), inputs)
	if err != nil {
		log.Fatal("Failed to import products:", err)
	}

	fmt.Println("Import completed successfully!")
	fmt.Printf("Total products imported: %d\n", imported)
}
