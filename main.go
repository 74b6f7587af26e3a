package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"bufmgr/buffer"
	"bufmgr/conf"
	"bufmgr/disk"
	"bufmgr/logger"
)

type demostruct struct {
	Num int
	Val string
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "configPath", "", "path to an ini or toml config file")
	flag.Parse()

	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.LogConfig{
		LogLevel:     cfg.LogLevel,
		InfoLogPath:  cfg.LogInfos,
		ErrorLogPath: cfg.LogError,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Errorf("demo failed: %v", err)
		os.Exit(1)
	}
}

func openDiskManager(cfg *conf.Cfg) (disk.IDiskManager, error) {
	if cfg.StorageEngine == conf.MemoryStorage {
		return disk.NewMemManager(), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DataFile), 0o755); err != nil {
		return nil, err
	}

	dm, created, err := disk.NewDiskManager(cfg.DataFile)
	if err != nil {
		return nil, err
	}
	logger.Infof("opened %s, new file: %v", cfg.DataFile, created)
	return dm, nil
}

// run writes more pages than the pool can hold, so that dirty pages are evicted, and reads all of them back.
func run(cfg *conf.Cfg) error {
	dm, err := openDiskManager(cfg)
	if err != nil {
		return err
	}
	defer dm.Close()

	buff, err := buffer.NewBufferPool(cfg.NumBuffers, dm,
		buffer.WithReplacer(cfg.Replacer),
		buffer.WithLogger(logger.Logger))
	if err != nil {
		return err
	}

	written := make([]disk.PageID, 0, 50)
	for i := 0; i < 50; i++ {
		x := demostruct{Num: i, Val: "selam"}
		data, err := json.Marshal(x)
		if err != nil {
			return err
		}

		pageId, p, err := buff.NewPage(1)
		if err != nil {
			return err
		}

		p.WLatch()
		copy(p.GetData(), data)
		p.WUnlatch()

		if err := buff.UnpinPage(pageId, true); err != nil {
			return err
		}
		written = append(written, pageId)
	}

	for i, pageId := range written {
		r, err := buff.GetPageReleaser(pageId, buffer.Read)
		if err != nil {
			return err
		}

		var x demostruct
		err = json.Unmarshal(bytes.TrimRight(r.GetData(), "\x00"), &x)
		if rerr := r.Release(false); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
		if x.Num != i {
			return fmt.Errorf("page %d holds %d, expected %d", pageId, x.Num, i)
		}
	}
	logger.Infof("%d pages written and read back", len(written))

	if err := buff.FlushAllPages(); err != nil {
		return err
	}
	if err := buff.PrintStat(os.Stdout); err != nil {
		return err
	}

	return buff.Close()
}
