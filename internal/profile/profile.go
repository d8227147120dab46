package profile

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/groupparrot/bot"
	"github.com/hrygo/groupparrot/llm"
)

// Profile is configuration to start the main process.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	// All providers (zai, deepseek, openai, siliconflow, dashscope, ollama) use the same config
	LLMProvider string // Provider identifier
	LLMAPIKey   string // Unified LLM API key
	LLMBaseURL  string // Unified LLM base URL (optional, has default per provider)
	LLMModel    string // Model name: glm-4.7, deepseek-chat, gpt-4o, etc.
	LLMTimeout  int    // LLM request timeout in seconds (default: 120)

	// Persona
	PersonaName        string
	PersonaDescription string
	PersonaTone        string

	// Channel
	Channel       string // telegram or none (events only via test harness)
	TelegramToken string

	// Outbound rate limit
	SendRatePerSecond float64
	SendBurst         int

	// Debug server
	Addr string
	Port int

	Mode    string
	Version string

	// Orchestration tunables; zero values fall back to bot defaults.
	Bot bot.Config
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Unified LLM configuration
	p.LLMProvider = getEnvOrDefault("GROUPPARROT_LLM_PROVIDER", "zai")
	p.LLMAPIKey = getEnvOrDefault("GROUPPARROT_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("GROUPPARROT_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("GROUPPARROT_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("GROUPPARROT_LLM_TIMEOUT_SECONDS", 120)

	// Validate the provider and apply its defaults if not explicitly set.
	// The llm package owns the provider table; no second copy here.
	if _, _, ok := llm.ProviderDefault(p.LLMProvider); !ok {
		slog.Warn("Unknown LLM provider, using default: zai", "provider", p.LLMProvider)
		p.LLMProvider = "zai"
	}
	baseURL, model, _ := llm.ProviderDefault(p.LLMProvider)
	if p.LLMBaseURL == "" {
		p.LLMBaseURL = baseURL
	}
	if p.LLMModel == "" {
		p.LLMModel = model
	}

	// Persona
	p.PersonaName = getEnvOrDefault("GROUPPARROT_PERSONA_NAME", "小鹦")
	p.PersonaDescription = getEnvOrDefault("GROUPPARROT_PERSONA_DESC", "一个常驻群里的大学生，爱凑热闹也会认真答疑")
	p.PersonaTone = getEnvOrDefault("GROUPPARROT_PERSONA_TONE", "口语化、简短、偶尔用流行梗，从不长篇大论")

	// Channel
	p.Channel = getEnvOrDefault("GROUPPARROT_CHANNEL", "telegram")
	p.TelegramToken = getEnvOrDefault("GROUPPARROT_TELEGRAM_TOKEN", "")

	// Outbound rate limit
	p.SendRatePerSecond = getEnvOrDefaultFloat("GROUPPARROT_SEND_RATE_PER_SECOND", 1)
	p.SendBurst = getEnvOrDefaultInt("GROUPPARROT_SEND_BURST", 3)

	// Orchestration tunables
	p.Bot.DebounceDelay = envSeconds("GROUPPARROT_DEBOUNCE_SECONDS")
	p.Bot.CooldownHard = envSeconds("GROUPPARROT_COOLDOWN_HARD_SECONDS")
	p.Bot.CooldownSoft = envSeconds("GROUPPARROT_COOLDOWN_SOFT_SECONDS")
	p.Bot.InterruptThreshold = getEnvOrDefaultInt("GROUPPARROT_INTERRUPT_THRESHOLD", 0)
	p.Bot.QuoteMessageGap = int64(getEnvOrDefaultInt("GROUPPARROT_QUOTE_MESSAGE_GAP", 0))
	p.Bot.EnergyRecoveryPerMinute = getEnvOrDefaultFloat("GROUPPARROT_ENERGY_RECOVERY_PER_MINUTE", 0)
	p.Bot.EnergyCostPerReply = getEnvOrDefaultFloat("GROUPPARROT_ENERGY_COST_PER_REPLY", 0)
	p.Bot.Normalize()
}

// envSeconds reads an integer-seconds env var; 0 means "use default".
func envSeconds(key string) time.Duration {
	return time.Duration(getEnvOrDefaultInt(key, 0)) * time.Second
}

// Persona builds the runtime persona from profile fields.
func (p *Profile) Persona() bot.Persona {
	return bot.Persona{
		Name:        p.PersonaName,
		Description: p.PersonaDescription,
		Tone:        p.PersonaTone,
	}
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Channel != "telegram" && p.Channel != "none" {
		return errors.Errorf("unknown channel %q (want telegram or none)", p.Channel)
	}
	if p.Channel == "telegram" && p.TelegramToken == "" {
		return errors.New("GROUPPARROT_TELEGRAM_TOKEN is required for the telegram channel")
	}
	if p.SendRatePerSecond <= 0 {
		p.SendRatePerSecond = 1
	}
	if p.SendBurst <= 0 {
		p.SendBurst = 3
	}
	return nil
}
