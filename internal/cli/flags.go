package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maauso/autocut/internal/config"
)

// addPathFlags registers the directory flags shared by every command.
func addPathFlags(fs *pflag.FlagSet, def *config.Config) {
	fs.StringP("input", "i", def.InputDir, "Input directory or single mp3 file")
	fs.StringP("output", "o", def.OutputDir, "Output directory")
	fs.String("copy-to", "", "Copy the output tree here after processing, verified by SHA-256")
	fs.String("move-dir", def.MoveDir, "Directory the copied output is moved into")
}

// addSplitFlags registers the processing flags.
func addSplitFlags(fs *pflag.FlagSet, def *config.Config) {
	fs.IntP("duration", "d", def.ChunkTargetSec, "Target chunk duration in seconds")
	fs.IntP("window", "w", def.SearchWindowSec, "Silence search window in seconds")
	fs.Float64P("threshold", "t", def.SilenceThreshDB, "Silence threshold in dBFS")
	fs.IntP("min-silence", "m", def.MinSilenceMs, "Minimum silence length in ms")
	fs.Float64P("speed", "s", def.Speed, "Playback speed of the chunks")
	fs.Bool("normalize", def.Normalize, "Peak-normalize every chunk")
	fs.Float64("target-dbfs", def.TargetDBFS, "Peak level used by --normalize")
	fs.String("bitrate", def.Bitrate, "Encoder bitrate, e.g. 64k")
	fs.Bool("skip-existing", def.SkipExisting, "Skip files whose first chunk already exists")
	fs.Bool("announce", def.Announce, "Prefix files with a spoken batch progress")
	fs.Int("announce-step", def.AnnounceStepPercent, "Announcement grid in percent")
	fs.String("locale", def.Locale, "Announcement language")
}

// loadConfig reads env and the --config file, then applies every flag the
// user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies changed flags into cfg. Flags not registered on fs are
// ignored.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	strs := map[string]*string{
		"input":    &cfg.InputDir,
		"output":   &cfg.OutputDir,
		"copy-to":  &cfg.CopyTo,
		"move-dir": &cfg.MoveDir,
		"bitrate":  &cfg.Bitrate,
		"locale":   &cfg.Locale,
	}
	ints := map[string]*int{
		"duration":      &cfg.ChunkTargetSec,
		"window":        &cfg.SearchWindowSec,
		"min-silence":   &cfg.MinSilenceMs,
		"announce-step": &cfg.AnnounceStepPercent,
		"concurrency":   &cfg.WatchConcurrency,
	}
	floats := map[string]*float64{
		"threshold":   &cfg.SilenceThreshDB,
		"speed":       &cfg.Speed,
		"target-dbfs": &cfg.TargetDBFS,
	}
	bools := map[string]*bool{
		"normalize":     &cfg.Normalize,
		"skip-existing": &cfg.SkipExisting,
		"announce":      &cfg.Announce,
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		name := f.Name
		switch {
		case strs[name] != nil:
			*strs[name], err = fs.GetString(name)
		case ints[name] != nil:
			*ints[name], err = fs.GetInt(name)
		case floats[name] != nil:
			*floats[name], err = fs.GetFloat64(name)
		case bools[name] != nil:
			*bools[name], err = fs.GetBool(name)
		}
		if err != nil {
			err = fmt.Errorf("flag --%s: %w", name, err)
		}
	})
	return err
}
