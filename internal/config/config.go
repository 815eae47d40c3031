package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/vecihi-bot/internal/models"
	"github.com/vecihi-bot/internal/prompt"
)

const (
	defaultServerAddr     = ":8080"
	defaultServerPath     = "/"
	defaultFetchTimeout   = 30
	defaultFetchMaxBytes  = 5 * 1024 * 1024
	defaultRequestTimeout = 300
	defaultHealthSchedule = "@every 5m"
	defaultLogLevel       = "info"
	defaultEnvironment    = "production"
	defaultConfigPath     = "config.yaml"
	configPathEnv         = "CONFIG_PATH"
	telegramTokenEnv      = "TELEGRAM_TOKEN"
	echoEnabledEnv        = "ECHO_ENABLED"
	contextFileURLEnv     = "CTX_FILE_URL"
	botNameEnv            = "BOT_NAME"
	botLocationEnv        = "BOT_LOCATION"
	logLevelEnv           = "LOG_LEVEL"
	environmentEnv        = "ENVIRONMENT"
)

var validate = newValidator()

// DefaultPath returns the configuration file path from CONFIG_PATH or config.yaml
func DefaultPath() string {
	return getEnv(configPathEnv, defaultConfigPath)
}

// LoadAll loads the .env file (optional), the configuration file and the
// runtime context, and cross-checks them. now is captured as the bot's
// current date and time for the life of the process.
func LoadAll(path string, now time.Time) (*models.Settings, *models.RuntimeContext, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	settings, err := Load(path)
	if err != nil {
		return nil, nil, err
	}

	runtime := LoadRuntime(now)

	if settings.Mode == models.ModeTelegram && strings.TrimSpace(runtime.BotToken) == "" {
		return nil, nil, fmt.Errorf("%w: %s is required in telegram mode", models.ErrConfiguration, telegramTokenEnv)
	}

	return settings, runtime, nil
}

// Load reads and validates the configuration file
func Load(path string) (*models.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read config file %s: %v", models.ErrConfiguration, path, err)
	}

	settings := defaults()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(settings); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: config file %s is empty", models.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: cannot parse config file %s: %v", models.ErrConfiguration, path, err)
	}

	applyDefaults(settings)

	if err := check(settings); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	return settings, nil
}

// LoadRuntime reads the bot identity and switches from the environment
func LoadRuntime(now time.Time) *models.RuntimeContext {
	return &models.RuntimeContext{
		BotName:        getEnv(botNameEnv, models.DefaultBotName),
		BotLocation:    getEnv(botLocationEnv, models.DefaultBotLocation),
		ContextFileURL: getEnv(contextFileURLEnv, ""),
		BotToken:       getEnv(telegramTokenEnv, ""),
		EchoEnabled:    getEnvBool(echoEnabledEnv, false),
		LogLevel:       getEnv(logLevelEnv, defaultLogLevel),
		Environment:    getEnv(environmentEnv, defaultEnvironment),
		CurrentDate:    now.Format(models.DateLayout),
		CurrentTime:    now.Format(models.TimeLayout),
	}
}

// defaults returns settings prefilled with every value that may be omitted
// from the file
func defaults() *models.Settings {
	return &models.Settings{
		Mode: models.ModeDirect,
		Model: models.ModelParams{
			Backend:               models.BackendOllama,
			Temperature:           models.DefaultTemperature,
			TopP:                  models.DefaultTopP,
			RequestTimeoutSeconds: defaultRequestTimeout,
		},
		Server: models.ServerSettings{
			Addr: defaultServerAddr,
			Path: defaultServerPath,
		},
		ContextFetch: models.ContextFetchSettings{
			TimeoutSeconds: defaultFetchTimeout,
			MaxBytes:       defaultFetchMaxBytes,
		},
		Health: models.HealthSettings{
			Schedule: defaultHealthSchedule,
		},
	}
}

// applyDefaults fills values that depend on other keys
func applyDefaults(s *models.Settings) {
	if s.Model.Backend == "" {
		s.Model.Backend = models.BackendOllama
	}
	if s.Model.BaseURL == "" {
		switch s.Model.Backend {
		case models.BackendOpenAI:
			s.Model.BaseURL = models.DefaultOpenAIBaseURL
		default:
			s.Model.BaseURL = models.DefaultOllamaBaseURL
		}
	}
	if s.Model.MaxTokens == 0 && s.Model.NPredict == 0 {
		s.Model.MaxTokens = models.DefaultMaxTokens
	}
}

// check validates the loaded settings. The model file and the template are
// checked first so their failures read plainly.
func check(s *models.Settings) error {
	if strings.TrimSpace(s.ModelFilePath) == "" {
		return fmt.Errorf("modelFilePath is required")
	}
	info, err := os.Stat(s.ModelFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("model file %s does not exist", s.ModelFilePath)
		}
		return fmt.Errorf("cannot stat model file %s: %v", s.ModelFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model file %s is a directory", s.ModelFilePath)
	}

	if strings.TrimSpace(s.PromptTemplate) == "" {
		return fmt.Errorf("promptTemplate is required")
	}
	if err := prompt.Validate(s.PromptTemplate); err != nil {
		return fmt.Errorf("promptTemplate: %v", err)
	}

	if err := validate.Struct(s); err != nil {
		return describe(err)
	}

	if s.Health.Schedule != "" {
		if _, err := cron.ParseStandard(s.Health.Schedule); err != nil {
			return fmt.Errorf("health.schedule: %v", err)
		}
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML key
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe flattens validator errors into one message
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Settings.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s, got %v", key, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}

	return value
}
