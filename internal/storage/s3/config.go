package s3

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// Tuning constants fixed by the adapter's design; none of these are
// environment-configurable.
const (
	ReadAppendChunkSize = 1 * 1024 * 1024 // 1 MiB, used by open-append's read loop.
	MultipartPartSize   = 5 * 1024 * 1024 // 5 MiB, used by the writable-file's
	// upload and by the rename path's multipart server-side copy.
	ListPageSize     = 100 // max-keys for list/rename pagination
	ExecutorPoolSize = 5   // fixed transfer-executor worker count
	UploadRetries    = 5   // additional whole-file Upload attempts after a failed one in Sync
	PartCopyRetries  = 3   // attempts per part during multipart server-side copy
)

// Config holds the client provider's environment-derived configuration
// (spec §6). It is populated once, under LoadConfig's sync.Once, and is
// immutable thereafter.
type Config struct {
	Endpoint string
	Region   string

	LoadSharedConfig bool
	SharedConfigFile string

	UseHTTPS  bool
	VerifySSL bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	CAFile string
	CAPath string
}

var (
	loadOnce  sync.Once
	loadedCfg Config
)

// LoadConfig reads the environment exactly once per process and returns the
// same Config on every subsequent call, per spec.md §6: "Environment is read
// once at first client construction; later changes are ignored."
func LoadConfig() Config {
	loadOnce.Do(func() {
		loadedCfg = loadConfigFromEnv()
	})
	return loadedCfg
}

// loadConfigFromEnv follows the teacher's internal/config.LoadFromEnv
// os.Getenv-per-variable style: read the raw string, parse it, fall back to
// a sensible default when unset or unparseable.
func loadConfigFromEnv() Config {
	cfg := defaultsFromOptionalFile()

	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}

	switch {
	case os.Getenv("AWS_REGION") != "":
		cfg.Region = os.Getenv("AWS_REGION")
	case os.Getenv("S3_REGION") != "":
		// Deprecated fallback; AWS_REGION wins when both are set.
		cfg.Region = os.Getenv("S3_REGION")
	case loadShared(os.Getenv("AWS_SDK_LOAD_CONFIG")):
		cfg.LoadSharedConfig = true
		if region, ok := regionFromSharedConfigFile(sharedConfigFilePath()); ok {
			cfg.Region = region
		}
	}

	if v := os.Getenv("AWS_CONFIG_FILE"); v != "" {
		cfg.SharedConfigFile = v
	} else if cfg.SharedConfigFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.SharedConfigFile = filepath.Join(home, ".aws", "config")
		}
	}

	cfg.UseHTTPS = true
	if v := os.Getenv("S3_USE_HTTPS"); v != "" && v[0] == '0' {
		cfg.UseHTTPS = false
	}

	cfg.VerifySSL = true
	if v := os.Getenv("S3_VERIFY_SSL"); v != "" && v[0] == '0' {
		cfg.VerifySSL = false
	}

	if v := os.Getenv("S3_CONNECT_TIMEOUT_MSEC"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ConnectTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("S3_REQUEST_TIMEOUT_MSEC"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RequestTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("S3_CA_FILE"); v != "" {
		cfg.CAFile = v
	}
	if v := os.Getenv("S3_CA_PATH"); v != "" {
		cfg.CAPath = v
	}

	return cfg
}

func loadShared(v string) bool {
	v = strings.ToLower(v)
	return v == "true" || v == "1"
}

func sharedConfigFilePath() string {
	if v := os.Getenv("AWS_CONFIG_FILE"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".aws", "config")
	}
	return ""
}

// regionFromSharedConfigFile reads the [default] profile's "region" key
// from an INI-style AWS config file, mirroring the reference
// AWSConfigFileProfileConfigLoader behavior of taking the default profile's
// region only when neither AWS_REGION nor S3_REGION is set.
func regionFromSharedConfigFile(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	inDefault := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "["):
			inDefault = line == "[default]"
		case inDefault && strings.HasPrefix(line, "region"):
			if _, val, ok := strings.Cut(line, "="); ok {
				if region := strings.TrimSpace(val); region != "" {
					return region, true
				}
			}
		}
	}
	return "", false
}

// fileDefaults is the optional on-disk seed for Config fields that are not
// set in the environment. This is additive to spec.md §6: environment
// variables always win; the file only fills gaps. Grounded on the teacher's
// internal/config.LoadFromFile's gopkg.in/yaml.v2 usage.
type fileDefaults struct {
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

// defaultsFromOptionalFile reads S3FS_CONFIG_FILE, if set, as YAML and
// seeds Config's Endpoint/Region from it. Any error (missing file,
// malformed YAML) is silently ignored: the file is a convenience default,
// never a required input.
func defaultsFromOptionalFile() Config {
	var cfg Config
	path := os.Getenv("S3FS_CONFIG_FILE")
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var fd fileDefaults
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return cfg
	}
	cfg.Endpoint = fd.Endpoint
	cfg.Region = fd.Region
	return cfg
}

// resetConfigForTest undoes LoadConfig's memoization; it exists only for
// tests that need to exercise loadConfigFromEnv multiple times within one
// process.
func resetConfigForTest() {
	loadOnce = sync.Once{}
	loadedCfg = Config{}
}
