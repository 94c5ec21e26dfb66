package core

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string  `yaml:"env" env:"ENV" env-default:"local"`
	TelegramApiKey string  `yaml:"telegram_api_key" env:"TELEGRAM_API_KEY" env-default:""`
	Username       string  `yaml:"username" env-default:""`
	RootAdmins     []int64 `yaml:"root_admins" env:"ROOT_ADMINS"`
	Gemini         struct {
		ApiKey string `yaml:"api_key" env:"GEMINI_API_KEY" env-default:""`
		ApiUrl string `yaml:"api_url" env-default:"https://generativelanguage.googleapis.com/v1beta/models"`
		Model  string `yaml:"model" env-default:"gemini-2.5-flash-image"`
	} `yaml:"gemini"`
	Storage struct {
		Backend    string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"sqlite"`
		SQLitePath string `yaml:"sqlite_path" env-default:"./data/painty.db"`
	} `yaml:"storage"`
	Mongo struct {
		Host     string `yaml:"host" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env-default:"27017"`
		User     string `yaml:"user" env-default:"admin"`
		Password string `yaml:"password" env-default:"pass"`
		Database string `yaml:"database" env-default:""`
	} `yaml:"mongo"`
	Health struct {
		Enabled bool   `yaml:"enabled" env-default:"true"`
		Port    string `yaml:"port" env:"HEALTH_PORT" env-default:"8080"`
	} `yaml:"health"`
}

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("config: %s; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}

func MustLoad(path string) *Config {
	conf, err := GetConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}

// IsRootAdmin reports whether the id belongs to the static root admin set.
func (c *Config) IsRootAdmin(telegramID int64) bool {
	for _, id := range c.RootAdmins {
		if id == telegramID {
			return true
		}
	}
	return false
}
