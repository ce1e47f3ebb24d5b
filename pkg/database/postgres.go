package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	migratePostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig задаёт параметры пула соединений PostgreSQL
type PoolConfig struct {
	// MaxOpenConns — максимальное число открытых соединений
	MaxOpenConns int
	// MaxIdleConns — максимальное число простаивающих соединений
	MaxIdleConns int
	// ConnMaxLifetime — максимальное время жизни соединения
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig возвращает настройки пула по умолчанию.
// Каждая активная комната опрашивает таблицу ответов каждые 500мс,
// поэтому запас простаивающих соединений держим повыше.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
	}
}

// NewPostgresDB создает новое подключение к PostgreSQL с пулом по умолчанию
func NewPostgresDB(dsn string) (*gorm.DB, error) {
	return NewPostgresDBWithPool(dsn, DefaultPoolConfig())
}

// NewPostgresDBWithPool создает подключение к PostgreSQL с заданным пулом
func NewPostgresDBWithPool(dsn string, pool PoolConfig) (*gorm.DB, error) {
	// Уровень Warn: опрос ответов и тики раундов на Info заспамили бы лог
	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return db, nil
}

// MigrateDB применяет SQL-миграции из папки 'migrations' в рабочем каталоге
func MigrateDB(db *gorm.DB) error {
	return MigrateDBFrom(db, "file://migrations")
}

// MigrateDBFrom применяет SQL-миграции из заданного источника
func MigrateDBFrom(db *gorm.DB, sourceURL string) error {
	log.Println("Запуск применения миграций базы данных...")

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("не удалось получить *sql.DB из *gorm.DB: %w", err)
	}

	// Убедимся, что подключение к БД активно
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("не удалось проверить подключение к БД перед миграцией: %w", err)
	}

	driver, err := migratePostgres.WithInstance(sqlDB, &migratePostgres.Config{})
	if err != nil {
		return fmt.Errorf("не удалось создать драйвер postgres для migrate: %w", err)
	}

	m, err := migrateV4.NewWithDatabaseInstance(
		sourceURL,
		"postgres", // Имя базы данных (для логирования в migrate)
		driver,
	)
	if err != nil {
		return fmt.Errorf("не удалось создать экземпляр migrate: %w", err)
	}

	// Применяем миграции "вверх"
	log.Println("Применяем миграции 'up'...")
	err = m.Up()
	if err != nil && !errors.Is(err, migrateV4.ErrNoChange) {
		log.Printf("Ошибка применения миграций: %v", err)
		return fmt.Errorf("ошибка применения миграций 'up': %w", err)
	} else if errors.Is(err, migrateV4.ErrNoChange) {
		log.Println("Изменений в миграциях не найдено, база данных уже актуальна.")
	} else {
		log.Println("Миграции успешно применены.")
	}

	log.Println("Миграции базы данных завершены.")
	return nil
}

// GetSQLDB возвращает базовый *sql.DB из *gorm.DB
func GetSQLDB(gormDB *gorm.DB) (*sql.DB, error) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB, nil
}
