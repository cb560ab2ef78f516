package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix string = "GATEWAY"

var defaults = map[string]any{
	"runningEnvironment":                    string(Production),
	"debugMode":                             false,
	"server.host":                           "0.0.0.0",
	"server.port":                           8080,
	"server.rateLimits.enabled":             false,
	"server.rateLimits.rate":                20,
	"server.rateLimits.burst":               40,
	"server.allowOrigin":                    []string{},
	"api.baseURL":                           "http://localhost:8080",
	"api.requestTimeout":                    "30s",
	"credentials.type":                      CredentialStoreRedis,
	"credentials.boltPath":                  "",
	"credentials.tokenEncryption.enabled":   false,
	"credentials.tokenEncryption.secretKey": "",
	"cookie.fallbackTTL":                    "24h",
	"refresh.timeout":                       "15s",
	"refresh.waitTimeout":                   "30s",
	"refresh.proactive":                     false,
	"refresh.expiresSoonMinutes":            3,
	"redis.type":                            DBTypeRedis,
	"redis.addresses":                       []string{"localhost:6379"},
	"redis.isSentinel":                      false,
	"redis.password":                        "",
	"redis.masterName":                      "",
	"redis.dbIndex":                         0,
	"sessions.idleSessionTTLSeconds":        86400,
	"sessions.maxSessionTTLSeconds":         604800,
	"monitoring.sentry.enabled":             false,
	"monitoring.sentry.dsn":                 "",
	"monitoring.sentry.environment":         "",
	"monitoring.sentry.sampleRate":          0,
	"monitoring.prometheus.enabled":         false,
	"monitoring.prometheus.port":            8765,
}

type ConfigHandler struct {
	mainViper   *viper.Viper
	secretViper *viper.Viper
	lock        *sync.Mutex
}

func (c *ConfigHandler) HandleChanges(callback func(Config, error)) {
	c.mainViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("main config file changed", "path", e.Name)
		callback(c.Config())
	})
	c.secretViper.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("secret config file changed", "path", e.Name)
		callback(c.Config())
	})
}

// Creates a configuration handler that reads the configuration files, merges them and can watch
// them for changes. Please note that the merges replace whole arrays - they do not merge arrays.
// The secret file will always overwrite anything in the non-secret / regular file. And any environment
// variables (GATEWAY_ prefixed) will always overwrite both files, so the order of preference from most
// preferred to least is environment variables, secret config, non-secret config, built-in defaults.
func NewConfigHandler() *ConfigHandler {
	main := viper.New()
	main.SetConfigType("yaml")
	main.SetConfigName("config")
	main.SetEnvPrefix(envPrefix)
	main.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	main.AutomaticEnv()
	for key, value := range defaults {
		main.SetDefault(key, value)
	}
	// optional values without a default are only read from the environment when bound
	_ = main.BindEnv("server.uiServerURL")
	secret := viper.New()
	secret.SetConfigType("yaml")
	secret.SetConfigName("secret_config")
	// Viper will look through the list of paths and use the first one where there is a file
	// so the path specified in the env variable will always take precedence over the rest
	configPaths := []string{}
	configPathEnv := os.Getenv("CONFIG_LOCATION")
	if configPathEnv != "" {
		configPaths = append(configPaths, configPathEnv)
	}
	configPaths = append(configPaths, "/etc/goalgrid", ".")
	for _, path := range configPaths {
		main.AddConfigPath(path)
		secret.AddConfigPath(path)
	}
	return &ConfigHandler{secretViper: secret, mainViper: main, lock: &sync.Mutex{}}
}

func readOptional(v *viper.Viper, name string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		slog.Info("could not find a config file, continuing without it", "name", name)
		return nil
	}
	return err
}

func (c *ConfigHandler) getConfig() (Config, error) {
	var output Config
	err := readOptional(c.mainViper, "config")
	if err != nil {
		return Config{}, err
	}
	err = readOptional(c.secretViper, "secret_config")
	if err != nil {
		return Config{}, err
	}
	// the secret config overwrites anything from the non-secret configuration,
	// environment variables still take precedence over both
	err = c.mainViper.MergeConfigMap(c.secretViper.AllSettings())
	if err != nil {
		return Config{}, err
	}
	err = c.mainViper.Unmarshal(
		&output,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				parseStringAsURL(),
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		),
	)
	if err != nil {
		return Config{}, err
	}
	err = output.Validate()
	if err != nil {
		return Config{}, err
	}
	return output, nil
}

func (c *ConfigHandler) Config() (Config, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.getConfig()
}

func (c *ConfigHandler) Watch() {
	c.mainViper.WatchConfig()
	c.secretViper.WatchConfig()
}

func parseStringAsURL() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (interface{}, error) {
		// Check that the data is string
		if f.Kind() != reflect.String {
			return data, nil
		}

		// Check that the target type is our custom type
		if t != reflect.TypeOf(url.URL{}) {
			return data, nil
		}

		// Return the parsed value
		dataStr, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("cannot cast URL value to string")
		}
		if dataStr == "" {
			return nil, fmt.Errorf("empty values are not allowed for URLs")
		}
		url, err := url.Parse(dataStr)
		if err != nil {
			return nil, err
		}
		return url, nil
	}
}
