// internal/storage/sqlite.go
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    PRAGMA foreign_keys = ON;

    CREATE TABLE IF NOT EXISTS nutrients (
        id INTEGER PRIMARY KEY,
        name TEXT NOT NULL,
        unit TEXT NOT NULL,
        rdas TEXT
    );

    CREATE TABLE IF NOT EXISTS foods (
        id INTEGER PRIMARY KEY,
        name TEXT NOT NULL,
        price_per_100_g REAL,
        restrictions TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        nutrition_url TEXT NOT NULL DEFAULT '',
        image_url TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS food_nutrients (
        food_id INTEGER NOT NULL,
        nutrient_id INTEGER NOT NULL,
        amount REAL NOT NULL,
        PRIMARY KEY (food_id, nutrient_id),
        FOREIGN KEY (food_id) REFERENCES foods(id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS runs (
        id TEXT PRIMARY KEY,
        run_index INTEGER NOT NULL,
        status TEXT NOT NULL,
        feasible INTEGER NOT NULL,
        total_cost REAL NOT NULL,
        objective REAL NOT NULL,
        slack_total REAL NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS run_foods (
        run_id TEXT NOT NULL,
        food_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        cost REAL NOT NULL,
        amount_g REAL NOT NULL,
        FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
    CREATE INDEX IF NOT EXISTS idx_run_foods_run_id ON run_foods(run_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveNutrients upserts every nutrient of the catalog.
func (s *SQLiteStorage) SaveNutrients(nutrients *catalog.NutrientCatalog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO nutrients (id, name, unit, rdas) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET name = excluded.name, unit = excluded.unit, rdas = excluded.rdas
    `
	for _, n := range nutrients.All() {
		var rdas []byte
		if len(n.RDAs) > 0 {
			if rdas, err = json.Marshal(n.RDAs); err != nil {
				return fmt.Errorf("failed to encode rdas of nutrient %d: %w", n.ID, err)
			}
		}
		if _, err := tx.Exec(query, n.ID, n.Name, n.Unit, nullString(rdas)); err != nil {
			return fmt.Errorf("failed to insert nutrient %d: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// LoadNutrients adds every stored nutrient to the catalog.
func (s *SQLiteStorage) LoadNutrients(nutrients *catalog.NutrientCatalog) error {
	rows, err := s.db.Query(`SELECT id, name, unit, rdas FROM nutrients ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query nutrients: %w", err)
	}
	defer rows.Close()

	var loaded []models.Nutrient
	for rows.Next() {
		var n models.Nutrient
		var rdas sql.NullString
		if err := rows.Scan(&n.ID, &n.Name, &n.Unit, &rdas); err != nil {
			return fmt.Errorf("failed to scan nutrient: %w", err)
		}
		if rdas.Valid {
			if err := json.Unmarshal([]byte(rdas.String), &n.RDAs); err != nil {
				return fmt.Errorf("failed to decode rdas of nutrient %d: %w", n.ID, err)
			}
		}
		loaded = append(loaded, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read nutrients: %w", err)
	}

	for _, n := range loaded {
		nutrients.Add(n)
	}
	return nil
}

// SaveFoods replaces the stored copy of every catalog food.
func (s *SQLiteStorage) SaveFoods(pantry *catalog.Pantry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range pantry.IDs() {
		food, err := pantry.Get(id)
		if err != nil {
			return err
		}
		if err := saveFood(tx, food); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveFood replaces the stored copy of one food.
func (s *SQLiteStorage) SaveFood(food *models.Food) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveFood(tx, food); err != nil {
		return err
	}
	return tx.Commit()
}

func saveFood(tx *sql.Tx, food *models.Food) error {
	foodQuery := `
        INSERT INTO foods (id, name, price_per_100_g, restrictions, description, nutrition_url, image_url)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            price_per_100_g = excluded.price_per_100_g,
            restrictions = excluded.restrictions,
            description = excluded.description,
            nutrition_url = excluded.nutrition_url,
            image_url = excluded.image_url
    `
	nutrientQuery := `INSERT INTO food_nutrients (food_id, nutrient_id, amount) VALUES (?, ?, ?)`

	restrictions, err := json.Marshal(food.Restrictions)
	if err != nil {
		return fmt.Errorf("failed to encode restrictions of food %d: %w", food.ID, err)
	}

	var price sql.NullFloat64
	if p, ok := food.Price(); ok {
		price = sql.NullFloat64{Float64: p, Valid: true}
	}

	_, err = tx.Exec(foodQuery, food.ID, food.Name, price, string(restrictions),
		food.Description, food.NutritionURL, food.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to insert food %d: %w", food.ID, err)
	}
	if _, err := tx.Exec(`DELETE FROM food_nutrients WHERE food_id = ?`, food.ID); err != nil {
		return fmt.Errorf("failed to clear nutrients of food %d: %w", food.ID, err)
	}
	for nutrientID, amount := range food.Nutrition {
		if _, err := tx.Exec(nutrientQuery, food.ID, nutrientID, amount); err != nil {
			return fmt.Errorf("failed to insert nutrient %d of food %d: %w", nutrientID, food.ID, err)
		}
	}
	return nil
}

// LoadFoods adds every stored food to the pantry. Nothing is added if a row is invalid.
func (s *SQLiteStorage) LoadFoods(pantry *catalog.Pantry, setActive bool) error {
	rows, err := s.db.Query(`
        SELECT id, name, price_per_100_g, restrictions, description, nutrition_url, image_url
        FROM foods
        ORDER BY id
    `)
	if err != nil {
		return fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var foods []*models.Food
	byID := make(map[int64]*models.Food)
	for rows.Next() {
		food := &models.Food{Nutrition: make(map[int]float64)}
		var price sql.NullFloat64
		var restrictions string

		err := rows.Scan(&food.ID, &food.Name, &price, &restrictions,
			&food.Description, &food.NutritionURL, &food.ImageURL)
		if err != nil {
			return fmt.Errorf("failed to scan food: %w", err)
		}
		if price.Valid {
			food.SetPrice(price.Float64)
		}
		if err := json.Unmarshal([]byte(restrictions), &food.Restrictions); err != nil {
			return fmt.Errorf("failed to decode restrictions of food %d: %w", food.ID, err)
		}
		foods = append(foods, food)
		byID[food.ID] = food
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read foods: %w", err)
	}

	if err := s.loadFoodNutrients(byID); err != nil {
		return err
	}

	for _, food := range foods {
		if err := food.Validate(); err != nil {
			return fmt.Errorf("%w: %v", catalog.ErrInvalidFood, err)
		}
	}
	for _, food := range foods {
		if err := pantry.Add(food, setActive); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) loadFoodNutrients(byID map[int64]*models.Food) error {
	rows, err := s.db.Query(`SELECT food_id, nutrient_id, amount FROM food_nutrients`)
	if err != nil {
		return fmt.Errorf("failed to query food nutrients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var foodID int64
		var nutrientID int
		var amount float64
		if err := rows.Scan(&foodID, &nutrientID, &amount); err != nil {
			return fmt.Errorf("failed to scan food nutrient: %w", err)
		}
		if food, ok := byID[foodID]; ok {
			food.Nutrition[nutrientID] = amount
		}
	}
	return rows.Err()
}

// RunRecord is the stored summary of an optimization run.
type RunRecord struct {
	ID         uuid.UUID      `json:"id"`
	Index      int            `json:"run"`
	Status     string         `json:"status"`
	Feasible   bool           `json:"feasible"`
	TotalCost  float64        `json:"total_cost"`
	Objective  float64        `json:"objective"`
	SlackTotal float64        `json:"slack_total"`
	CreatedAt  time.Time      `json:"created_at"`
	Foods      []RunFoodEntry `json:"foods"`
}

type RunFoodEntry struct {
	FoodID int64   `json:"food_id"`
	Name   string  `json:"food_name"`
	Cost   float64 `json:"cost"`
	Grams  float64 `json:"amount_g"`
}

func (s *SQLiteStorage) SaveRun(run *optimizer.Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	runQuery := `
        INSERT INTO runs (id, run_index, status, feasible, total_cost, objective, slack_total, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.Exec(runQuery,
		run.ID.String(), run.Index, string(run.Status), run.Feasible(), run.TotalCost(),
		run.Objective, run.SlackTotal(), run.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	foodQuery := `
        INSERT INTO run_foods (run_id, food_id, name, cost, amount_g)
        VALUES (?, ?, ?, ?, ?)
    `
	for _, f := range run.OptimalFoods() {
		if _, err := tx.Exec(foodQuery, run.ID.String(), f.FoodID, f.Name, f.Cost, f.Grams); err != nil {
			return fmt.Errorf("failed to insert run food: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recently saved runs first.
func (s *SQLiteStorage) ListRuns(limit int) ([]*RunRecord, error) {
	query := `
        SELECT id, run_index, status, feasible, total_cost, objective, slack_total, created_at
        FROM runs
        ORDER BY rowid DESC
        LIMIT ?
    `
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		var idStr, createdAtStr string

		err := rows.Scan(&idStr, &run.Index, &run.Status, &run.Feasible,
			&run.TotalCost, &run.Objective, &run.SlackTotal, &createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("failed to parse run id: %w", err)
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	rows.Close()

	for _, run := range runs {
		if err := s.loadFoodsForRun(run); err != nil {
			return nil, fmt.Errorf("failed to load foods for run %s: %w", run.ID, err)
		}
	}
	return runs, nil
}

func (s *SQLiteStorage) loadFoodsForRun(run *RunRecord) error {
	query := `
        SELECT food_id, name, cost, amount_g
        FROM run_foods
        WHERE run_id = ?
        ORDER BY food_id
    `

	rows, err := s.db.Query(query, run.ID.String())
	if err != nil {
		return fmt.Errorf("failed to query run foods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f RunFoodEntry
		if err := rows.Scan(&f.FoodID, &f.Name, &f.Cost, &f.Grams); err != nil {
			return fmt.Errorf("failed to scan run food: %w", err)
		}
		run.Foods = append(run.Foods, f)
	}
	return rows.Err()
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
