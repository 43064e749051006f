package config

const (
	defaultConfigPath   = "~/.config/naimeta/config.toml"
	projectConfigName   = "naimeta.toml"
	cacheFileName       = "metacache.db"
	defaultLogDir       = "~/.local/share/naimeta/logs"
	defaultScanPattern  = "*.png"
	defaultScanWorkers  = 4
	defaultPixelOrder   = "row"
	defaultCSVName      = "nai_meta.csv"
	defaultTSVName      = "nai_raw_json.tsv"
	defaultCharSlots    = 6
	defaultServerBind   = "127.0.0.1:8787"
	defaultMaxUploadMiB = 32
	defaultAllowOrigin  = "*"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	maxScanWorkers      = 256
	maxCharSlots        = 64
	maxUploadMiBLimit   = 1024
	envLogLevel         = "NAIMETA_LOG_LEVEL"
	envServerBind       = "NAIMETA_SERVER_BIND"
	envAPIToken         = "NAIMETA_API_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			CachePath: defaultCachePath(),
		},
		Scan: Scan{
			Pattern:    defaultScanPattern,
			Workers:    defaultScanWorkers,
			PixelOrder: defaultPixelOrder,
		},
		Export: Export{
			CSVName:   defaultCSVName,
			TSVName:   defaultTSVName,
			CharSlots: defaultCharSlots,
		},
		Cache: Cache{
			Enabled: true,
		},
		Server: Server{
			Bind:         defaultServerBind,
			MaxUploadMiB: defaultMaxUploadMiB,
			AllowOrigin:  defaultAllowOrigin,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
