package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/andreyvit/pbdb"
	"github.com/andreyvit/pbdb/codegen"
	"github.com/andreyvit/pbdb/protoschema"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func descriptorSetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "descriptor-set",
		Aliases: []string{"s"},
		Usage:   "Binary FileDescriptorSet produced by protoc --descriptor_set_out --include_imports",
	}
}

func dbFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		descriptorSetFlag(),
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the database file or directory",
		},
		&cli.StringFlag{
			Name:  "engine",
			Usage: "Storage engine (bolt, badger)",
			Value: pbdb.EngineBolt.String(),
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log every database operation",
		},
	}
	return append(flags, extra...)
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "pbdb",
		Usage:    "Protobuf-schema database tool",
		Metadata: make(map[string]any),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Value:   DefaultConfigFile,
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return setupConfig(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "gen",
				Usage:  "Generate Go declarations of collections and singletons",
				Action: genCommand,
				Flags: []cli.Flag{
					descriptorSetFlag(),
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file, - for stdout",
						Value:   "-",
					},
					&cli.StringFlag{
						Name:  "package",
						Usage: "Go package name (defaults to the go_package option)",
					},
					&cli.StringFlag{
						Name:  "go-package",
						Usage: "Only generate messages of files with this go_package option",
					},
				},
			},
			{
				Name:   "inspect",
				Usage:  "List the collections and singletons of a descriptor set",
				Action: inspectCommand,
				Flags:  []cli.Flag{descriptorSetFlag()},
			},
			{
				Name:   "dump",
				Usage:  "Print the contents of a database",
				Action: dumpCommand,
				Flags: dbFlags(&cli.BoolFlag{
					Name:  "stats",
					Usage: "Only print partition statistics",
				}),
			},
			{
				Name:      "get",
				Usage:     "Print one record as JSON",
				ArgsUsage: "<collection> <key> | <singleton>",
				Action:    getCommand,
				Flags:     dbFlags(),
			},
			{
				Name:   "options-proto",
				Usage:  "Write pbdb.proto with the record options into a directory",
				Action: optionsProtoCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Directory to write into",
						Value: ".",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	c.App.Metadata[loggerKeyName] = logger
	return nil
}

const loggerKeyName = "pbdb.logger"

func loggerFrom(c *cli.Context) *slog.Logger {
	if logger, ok := c.App.Metadata[loggerKeyName].(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func loadDefinitions(c *cli.Context) (string, []protoschema.Definition, error) {
	fn := stringOpt(c, "descriptor-set", configFrom(c).DescriptorSet)
	if fn == "" {
		return "", nil, fmt.Errorf("descriptor set is required (--descriptor-set or descriptor_set in config)")
	}
	_, defs, err := protoschema.AnalyzeFile(fn)
	if err != nil {
		return "", nil, err
	}
	return fn, defs, nil
}

func genCommand(c *cli.Context) error {
	cfg := configFrom(c)
	fn, defs, err := loadDefinitions(c)
	if err != nil {
		return err
	}
	defs, err = selectGoPackage(defs, stringOpt(c, "go-package", cfg.Gen.GoPackage))
	if err != nil {
		return err
	}

	src, err := codegen.Generate(defs, codegen.Options{
		Package: stringOpt(c, "package", cfg.Gen.Package),
		Source:  fn,
	})
	if err != nil {
		return err
	}

	out := stringOpt(c, "out", cfg.Gen.Out)
	if out == "-" {
		_, err = c.App.Writer.Write(src)
		return err
	}
	if err := os.WriteFile(out, src, 0o644); err != nil {
		return err
	}
	slog.Info("generated", "file", out, "definitions", len(defs))
	return nil
}

// selectGoPackage keeps the definitions of one Go package. With goPkg empty,
// all definitions must share a package.
func selectGoPackage(defs []protoschema.Definition, goPkg string) ([]protoschema.Definition, error) {
	if goPkg == "" {
		if len(defs) == 0 {
			return defs, nil
		}
		for _, def := range defs[1:] {
			if def.GoPackage != defs[0].GoPackage {
				return nil, fmt.Errorf("definitions span Go packages %q and %q, pick one with --go-package", defs[0].GoPackage, def.GoPackage)
			}
		}
		return defs, nil
	}
	var result []protoschema.Definition
	for _, def := range defs {
		if def.GoPackage == goPkg {
			result = append(result, def)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no definitions with go_package %q", goPkg)
	}
	return result, nil
}

func inspectCommand(c *cli.Context) error {
	_, defs, err := loadDefinitions(c)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tKEY\tFILE")
	for _, def := range defs {
		key := def.KeyField
		if def.IsSingleton() {
			key = "-"
		} else if def.CaseInsensitive {
			key += " (case-insensitive)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", def.Kind, def.FullName, key, def.File)
	}
	return tw.Flush()
}

func openDB(c *cli.Context) (*pbdb.DB, *pbdb.DynamicSchema, error) {
	cfg := configFrom(c)
	fn := stringOpt(c, "descriptor-set", cfg.DescriptorSet)
	if fn == "" {
		return nil, nil, fmt.Errorf("descriptor set is required (--descriptor-set or descriptor_set in config)")
	}
	path := stringOpt(c, "db", cfg.DB)
	if path == "" {
		return nil, nil, fmt.Errorf("database path is required (--db or db in config)")
	}
	scm, err := pbdb.LoadDynamicSchema(fn)
	if err != nil {
		return nil, nil, err
	}
	opt, err := cfg.dbOptions(c)
	if err != nil {
		return nil, nil, err
	}
	db, err := pbdb.Open(path, scm.Schema, opt)
	if err != nil {
		return nil, nil, err
	}
	return db, scm, nil
}

func dumpCommand(c *cli.Context) error {
	db, _, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	flags := pbdb.DumpAll
	if c.Bool("stats") {
		flags = pbdb.DumpHeaders | pbdb.DumpStats
	}
	return db.Dump(c.App.Writer, flags)
}

func getCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: pbdb get %s", c.Command.ArgsUsage)
	}
	db, scm, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if coll := scm.Collection(name); coll != nil {
		if c.NArg() != 2 {
			return fmt.Errorf("%s is a collection, pass a key", name)
		}
		m, err := pbdb.Get(db, coll, coll.ID(c.Args().Get(1)))
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%s[%q] not found", name, c.Args().Get(1))
		}
		return writeJSON(c.App.Writer, m)
	}
	if single := scm.Singleton(name); single != nil {
		if c.NArg() != 1 {
			return fmt.Errorf("%s is a singleton, it has no key", name)
		}
		m, err := pbdb.GetSingle(db, single)
		if err != nil {
			return err
		}
		return writeJSON(c.App.Writer, m)
	}
	return fmt.Errorf("%s is neither a collection nor a singleton", name)
}

func writeJSON(w io.Writer, m proto.Message) error {
	data, err := jsonOptions.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func optionsProtoCommand(c *cli.Context) error {
	path, err := protoschema.WriteOptionsProto(c.String("dir"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, path)
	return nil
}

var jsonOptions = protojson.MarshalOptions{Multiline: true, UseProtoNames: true}
