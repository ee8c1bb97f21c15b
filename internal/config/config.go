package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvConfig is the process-level configuration read from the environment,
// mirroring the teacher's flat os.Getenv boot pattern.
type EnvConfig struct {
	DataDir   string // directory holding maps.json/characters.json/npcs.json/world.json
	LogDir    string
	StoreDir  string
	StorePath string // sqlite file path; empty means in-memory only

	SimulationName string

	TextModelURL string
	TextModelKey string
	TextModel    string

	TickIntervalMs int
	SaveIntervalS  int
}

// LoadEnv loads a .env file (if present) and reads EnvConfig from the
// environment. A missing .env file is not an error — the teacher's main.go
// treats os.IsNotExist the same way.
func LoadEnv() (EnvConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return EnvConfig{}, fmt.Errorf("config: load .env: %w", err)
	}

	tick, err := atoiDefault("TICK_INTERVAL_MS", 1000)
	if err != nil {
		return EnvConfig{}, err
	}
	save, err := atoiDefault("SAVE_INTERVAL_SECONDS", 30)
	if err != nil {
		return EnvConfig{}, err
	}

	return EnvConfig{
		DataDir:   os.Getenv("DATA_DIR"),
		LogDir:    os.Getenv("LOG_DIR"),
		StoreDir:  os.Getenv("STORE_DIR"),
		StorePath: os.Getenv("STORE_PATH"),

		SimulationName: os.Getenv("SIMULATION_NAME"),

		TextModelURL: os.Getenv("TEXT_MODEL_URL"),
		TextModelKey: os.Getenv("TEXT_MODEL_KEY"),
		TextModel:    os.Getenv("TEXT_MODEL_LLM"),

		TickIntervalMs: tick,
		SaveIntervalS:  save,
	}, nil
}

func atoiDefault(key string, def int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return def, nil
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an int: %w", key, str, err)
	}
	return v, nil
}
