package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

type CommandLineArgs struct {
	ConfigPath string
}

/*
[bufferpool]
num_buffers = 64
replacer    = clock

[storage]
engine    = file
data_file = data/bufmgr.db

[logs]
log_level = info
log_infos =
log_error =
*/
type Cfg struct {
	// bufferpool
	NumBuffers int    `default:"64" ini:"num_buffers" toml:"num_buffers"`
	Replacer   string `default:"clock" ini:"replacer" toml:"replacer"`

	// storage
	StorageEngine string `default:"file" ini:"engine" toml:"engine"`
	DataFile      string `default:"data/bufmgr.db" ini:"data_file" toml:"data_file"`

	// logs
	LogLevel string `default:"info" ini:"log_level" toml:"log_level"`
	LogInfos string `default:"" ini:"log_infos" toml:"log_infos"`
	LogError string `default:"" ini:"log_error" toml:"log_error"`
}

const (
	FileStorage   = "file"
	MemoryStorage = "memory"
)

func NewCfg() *Cfg {
	return &Cfg{
		NumBuffers:    64,
		Replacer:      "clock",
		StorageEngine: FileStorage,
		DataFile:      filepath.Join("data", "bufmgr.db"),
		LogLevel:      "info",
	}
}

// Load overrides defaults with the values found in the config file. Files ending with .toml are parsed as toml,
// anything else as ini. A missing file is not an error, defaults are kept.
func (cfg *Cfg) Load(args *CommandLineArgs) (*Cfg, error) {
	if args == nil || args.ConfigPath == "" {
		return cfg, nil
	}

	if _, err := os.Stat(args.ConfigPath); os.IsNotExist(err) {
		return cfg, nil
	}

	var err error
	if strings.EqualFold(filepath.Ext(args.ConfigPath), ".toml") {
		err = cfg.loadToml(args.ConfigPath)
	} else {
		err = cfg.loadIni(args.ConfigPath)
	}
	if err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func (cfg *Cfg) loadIni(path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return errors.Wrapf(err, "parse ini config %s", path)
	}

	bp := file.Section("bufferpool")
	cfg.NumBuffers = bp.Key("num_buffers").MustInt(cfg.NumBuffers)
	cfg.Replacer = valueAsString(bp, "replacer", cfg.Replacer)

	storage := file.Section("storage")
	cfg.StorageEngine = valueAsString(storage, "engine", cfg.StorageEngine)
	cfg.DataFile = valueAsString(storage, "data_file", cfg.DataFile)

	logs := file.Section("logs")
	cfg.LogLevel = valueAsString(logs, "log_level", cfg.LogLevel)
	cfg.LogInfos = valueAsString(logs, "log_infos", cfg.LogInfos)
	cfg.LogError = valueAsString(logs, "log_error", cfg.LogError)

	return nil
}

func (cfg *Cfg) loadToml(path string) error {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return errors.Wrapf(err, "parse toml config %s", path)
	}

	if v, ok := tree.Get("bufferpool.num_buffers").(int64); ok {
		cfg.NumBuffers = int(v)
	}
	cfg.Replacer = tomlString(tree, "bufferpool.replacer", cfg.Replacer)
	cfg.StorageEngine = tomlString(tree, "storage.engine", cfg.StorageEngine)
	cfg.DataFile = tomlString(tree, "storage.data_file", cfg.DataFile)
	cfg.LogLevel = tomlString(tree, "logs.log_level", cfg.LogLevel)
	cfg.LogInfos = tomlString(tree, "logs.log_infos", cfg.LogInfos)
	cfg.LogError = tomlString(tree, "logs.log_error", cfg.LogError)

	return nil
}

// validate only checks fields the pool does not check itself. num_buffers is validated by buffer.NewBufferPool.
func (cfg *Cfg) validate() error {
	switch cfg.StorageEngine {
	case FileStorage, MemoryStorage:
	default:
		return errors.Errorf("unknown storage engine %q", cfg.StorageEngine)
	}

	if cfg.StorageEngine == FileStorage && cfg.DataFile == "" {
		return errors.New("data_file must be set for file storage")
	}

	return nil
}

func valueAsString(section *ini.Section, keyName string, defaultValue string) string {
	if section == nil {
		return defaultValue
	}

	value := section.Key(keyName).MustString(defaultValue)
	if value == "" {
		return defaultValue
	}
	return value
}

func tomlString(tree *toml.Tree, key string, defaultValue string) string {
	if v, ok := tree.Get(key).(string); ok && v != "" {
		return v
	}
	return defaultValue
}
