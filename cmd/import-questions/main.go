package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/yourusername/battle-api/internal/config"
	"github.com/yourusername/battle-api/internal/domain/entity"
	pgRepo "github.com/yourusername/battle-api/internal/repository/postgres"
	"github.com/yourusername/battle-api/pkg/database"
)

// Утилита загрузки банка вопросов из xlsx файла.
// Ожидаемые колонки листа: A - слово, B - чтение хираганой, C - сложность (C/B/A/S).
// Первая строка считается заголовком и пропускается.
func main() {
	filePath := flag.String("file", "", "путь к xlsx файлу с вопросами")
	sheet := flag.String("sheet", "", "имя листа (по умолчанию первый лист)")
	flag.Parse()

	if *filePath == "" {
		log.Fatal("укажите -file <path.xlsx>")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	f, err := excelize.OpenFile(*filePath)
	if err != nil {
		log.Fatalf("Не удалось открыть файл %s: %v", *filePath, err)
	}
	defer f.Close()

	sheetName := *sheet
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Fatalf("Не удалось прочитать лист %s: %v", sheetName, err)
	}

	now := time.Now()
	questions := make([]entity.Question, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		if i == 0 {
			continue // Заголовок
		}
		if len(row) < 3 {
			skipped++
			continue
		}

		word := strings.TrimSpace(row[0])
		reading := strings.TrimSpace(row[1])
		difficulty := strings.ToUpper(strings.TrimSpace(row[2]))

		if word == "" || reading == "" || !entity.IsValidDifficulty(difficulty) {
			log.Printf("Строка %d пропущена: слово=%q чтение=%q сложность=%q", i+1, word, reading, difficulty)
			skipped++
			continue
		}

		questions = append(questions, entity.Question{
			ID:         uuid.NewString(),
			Word:       word,
			Reading:    reading,
			Difficulty: difficulty,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if len(questions) == 0 {
		log.Fatal("В файле не найдено ни одного валидного вопроса")
	}

	questionRepo := pgRepo.NewQuestionRepo(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := questionRepo.CreateBatch(ctx, questions); err != nil {
		log.Fatalf("Ошибка записи вопросов: %v", err)
	}

	log.Printf("Импортировано %d вопросов (%d строк пропущено)", len(questions), skipped)

	for _, d := range []string{entity.DifficultyC, entity.DifficultyB, entity.DifficultyA, entity.DifficultyS} {
		count, err := questionRepo.CountByDifficulty(ctx, d)
		if err != nil {
			continue
		}
		log.Printf("Пул сложности %s: %d вопросов", d, count)
	}
}
