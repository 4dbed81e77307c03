// Package config loads application settings from a YAML file merged with
// environment variables (and a .env file), with environment values always
// taking precedence over the file. This mirrors the donor's own
// LoadConfig env-first convention, generalized to also support a
// structured YAML settings file for the much larger configuration surface
// this system carries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AlertWindow is a {enabled, timeWindowSec} pair shared by several alert
// kinds.
type AlertWindow struct {
	Enabled       bool `yaml:"enabled"`
	TimeWindowSec int  `yaml:"timeWindowSec"`
}

// OrderBookAlertConfig configures wall/imbalance/sweep detection.
type OrderBookAlertConfig struct {
	Enabled              bool     `yaml:"enabled"`
	Symbols              []string `yaml:"symbols"`
	WallDetection        bool     `yaml:"wallDetection"`
	WallValueThreshold   float64  `yaml:"wallValueThreshold"`
	WallRatioThreshold   float64  `yaml:"wallRatioThreshold"`
	WallDistanceMax      float64  `yaml:"wallDistanceMax"`
	ImbalanceDetection   bool     `yaml:"imbalanceDetection"`
	ImbalanceThreshold   float64  `yaml:"imbalanceThreshold"`
	ImbalanceDepthLevels int      `yaml:"imbalanceDepthLevels"`
	SweepDetection       bool     `yaml:"sweepDetection"`
	SweepValueThreshold  float64  `yaml:"sweepValueThreshold"`
	UpdateSpeed          string   `yaml:"updateSpeed"`
	DepthLevels          int      `yaml:"depthLevels"`
}

// AlertsConfig bundles every detector's tunables.
type AlertsConfig struct {
	PriceChange       AlertWindow          `yaml:"priceChange"`
	VolumeSpike       struct {
		Enabled         bool `yaml:"enabled"`
		LookbackPeriods int  `yaml:"lookbackPeriods"`
	} `yaml:"volumeSpike"`
	OpenInterest struct {
		Enabled         bool `yaml:"enabled"`
		PollIntervalSec int  `yaml:"pollIntervalSec"`
		TimeWindowSec   int  `yaml:"timeWindowSec"`
	} `yaml:"openInterest"`
	SpotFuturesSpread struct {
		Enabled         bool    `yaml:"enabled"`
		TimeWindowSec   int     `yaml:"timeWindowSec"`
		PollIntervalSec int     `yaml:"pollIntervalSec"`
		ThresholdPct    float64 `yaml:"threshold"`
	} `yaml:"spotFuturesSpread"`
	PriceReversal AlertWindow          `yaml:"priceReversal"`
	OrderBook     OrderBookAlertConfig `yaml:"orderbook"`
	CooldownSec   int                  `yaml:"cooldownSec"`
}

// VolumeTier is one entry of the volumeTiers[] list.
type VolumeTier struct {
	MinOIValue      float64 `yaml:"minOIValue"`
	PriceThreshold  float64 `yaml:"priceThreshold"`
	VolumeThreshold float64 `yaml:"volumeThreshold"`
	OIThreshold     float64 `yaml:"oiThreshold"`
	SpreadThreshold float64 `yaml:"spreadThreshold"`
	Label           string  `yaml:"label"`
}

// FilterConfig is the symbol whitelist/blacklist mode.
type FilterConfig struct {
	Mode      string   `yaml:"mode"`
	Whitelist []string `yaml:"whitelist"`
	Blacklist []string `yaml:"blacklist"`
}

// MLConfig bundles feature/label/risk tunables.
type MLConfig struct {
	Enabled bool `yaml:"enabled"`
	Feature struct {
		SaveIntervalSec int `yaml:"saveIntervalSec"`
	} `yaml:"feature"`
	Label struct {
		DirectionThresholdPct float64 `yaml:"directionThreshold"`
	} `yaml:"label"`
	Indicators struct {
		MAPeriods  []int `yaml:"maPeriods"`
		RSIPeriod  int   `yaml:"rsiPeriod"`
		MACDFast   int   `yaml:"macdFast"`
		MACDSlow   int   `yaml:"macdSlow"`
		MACDSignal int   `yaml:"macdSignal"`
		BBPeriod   int   `yaml:"bbPeriod"`
		BBStd      float64 `yaml:"bbStd"`
	} `yaml:"indicators"`
	Risk struct {
		Enabled               bool    `yaml:"enabled"`
		FilterAlerts          bool    `yaml:"filterAlerts"`
		MaxWSLatencyMs        float64 `yaml:"maxWsLatencyMs"`
		MaxSpreadBps          float64 `yaml:"maxSpreadBps"`
		MinDepthValue         float64 `yaml:"minDepthValue"`
		FakeSignalWindowSec   int     `yaml:"fakeSignalWindowSec"`
		FakeSignalRevertRatio float64 `yaml:"fakeSignalRevertRatio"`
		FakeSignalMinChangePct float64 `yaml:"fakeSignalMinChange"`
	} `yaml:"risk"`
}

// TradingConfig bundles account/strategy/stopLoss/realtime tunables.
type TradingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
	Account struct {
		InitialBalance  float64 `yaml:"initialBalance"`
		Leverage        float64 `yaml:"leverage"`
		MakerFee        float64 `yaml:"makerFee"`
		TakerFee        float64 `yaml:"takerFee"`
		MaxPositions    int     `yaml:"maxPositions"`
		PositionRiskPct float64 `yaml:"positionRiskPct"`
	} `yaml:"account"`
	Strategy struct {
		MinConfidence           float64 `yaml:"minConfidence"`
		SignalThreshold         float64 `yaml:"signalThreshold"`
		RSIOversold             float64 `yaml:"rsiOversold"`
		RSIOverbought           float64 `yaml:"rsiOverbought"`
		MinVolatility           float64 `yaml:"minVolatility"`
		MinVolumeRatio          float64 `yaml:"minVolumeRatio"`
		ImbalanceLongThreshold  float64 `yaml:"imbalanceLongThreshold"`
		ImbalanceShortThreshold float64 `yaml:"imbalanceShortThreshold"`
		TrendFilterPct          float64 `yaml:"trendFilterPct"`
	} `yaml:"strategy"`
	StopLoss struct {
		Method            string  `yaml:"method"`
		FixedStopPct      float64 `yaml:"fixedStopPct"`
		TakeProfitPct     float64 `yaml:"takeProfitPct"`
		ATRMultiplier     float64 `yaml:"atrMultiplier"`
		ATRPeriod         int     `yaml:"atrPeriod"`
		TrailingDistance  float64 `yaml:"trailingDistance"`
		TrailingActivation float64 `yaml:"trailingActivation"`
		MaxHoldSec        float64 `yaml:"maxHoldSec"`
	} `yaml:"stopLoss"`
	Realtime struct {
		SaveIntervalSec       int      `yaml:"saveIntervalSec"`
		LogTrades             bool     `yaml:"logTrades"`
		MaxPositionsPerSymbol int      `yaml:"maxPositionsPerSymbol"`
		AllowedSymbols        []string `yaml:"allowedSymbols"`
	} `yaml:"realtime"`
}

// ExchangeConfig, TelegramConfig, PushConfig, HTTPConfig, LoggingConfig
// hold the ambient/external wiring. Secrets are only ever populated from
// the environment, never from the YAML file.
type ExchangeConfig struct {
	APIKey     string `yaml:"-"`
	APISecret  string `yaml:"-"`
	UseTestnet bool `yaml:"useTestnet"`
}

type TelegramConfig struct {
	Enabled bool `yaml:"enabled"`
	BotToken string `yaml:"-"`
	ChatID   string `yaml:"-"`
}

type PushConfig struct {
	Enabled               bool `yaml:"enabled"`
	ServiceAccountKeyPath string `yaml:"serviceAccountKeyPath"`
}

type HTTPConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Settings is the full merged configuration tree.
type Settings struct {
	Alerts      AlertsConfig     `yaml:"alerts"`
	VolumeTiers []VolumeTier     `yaml:"volumeTiers"`
	Filter      FilterConfig     `yaml:"filter"`
	ML          MLConfig         `yaml:"ml"`
	Trading     TradingConfig    `yaml:"trading"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	Telegram    TelegramConfig   `yaml:"telegram"`
	Push        PushConfig       `yaml:"push"`
	HTTP        HTTPConfig       `yaml:"http"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// Load reads yamlPath (if present), then applies .env/OS-environment
// overrides (environment always wins), matching the donor's own
// env-over-default merge order in LoadConfig.
func Load(yamlPath string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	settings := &Settings{}
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read yaml config %s: %w", yamlPath, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, settings); err != nil {
				return nil, fmt.Errorf("parse yaml config %s: %w", yamlPath, err)
			}
		}
	}

	applyEnvOverrides(settings)
	return settings, nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		s.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		s.Exchange.APISecret = v
	}
	if v := os.Getenv("BINANCE_USE_TESTNET"); v != "" {
		s.Exchange.UseTestnet = parseBool(v, s.Exchange.UseTestnet)
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		s.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		s.Telegram.ChatID = v
	}
	if v := os.Getenv("PUSH_SERVICE_ACCOUNT_KEY_PATH"); v != "" {
		s.Push.ServiceAccountKeyPath = v
	}
	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		s.HTTP.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.Logging.Level = strings.ToLower(v)
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
