package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envPrefix = "CFS"

	keyImage     = "image"
	keyConfig    = "config"
	keyMaxBlocks = "max-blocks"
	keyCompress  = "compress"
	keyLogLevel  = "log-level"
)

// newViper returns a configuration reading flags, then CFS_* environment
// variables, then an optional yaml file, then defaults.
func newViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyImage, "cfs.img")
	v.SetDefault(keyMaxBlocks, 0)
	v.SetDefault(keyCompress, "")
	v.SetDefault(keyLogLevel, "warn")
	return v
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP(keyImage, "i", "cfs.img", "image file")
	flags.String(keyConfig, "", "yaml config file")
	flags.Int(keyMaxBlocks, 0, "block count of new images (default 32; inferred when opening)")
	flags.String(keyCompress, "", "image compression: none, zstd or lz4")
	flags.String(keyLogLevel, "warn", "log level")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	return err
}

func readConfig(v *viper.Viper) error {
	filename := v.GetString(keyConfig)
	if filename == "" {
		return nil
	}
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	err := v.ReadInConfig()
	if err != nil {
		return fmt.Errorf("config %s: %w", filename, err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	c := zap.NewProductionConfig()
	c.Level = lvl
	c.Encoding = "console"
	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return c.Build(
		zap.AddStacktrace(zap.NewAtomicLevelAt(zap.FatalLevel)),
	)
}
