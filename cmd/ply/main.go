// Command ply converts and inspects property lists.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/zdypro888/go-plist"
)

type options struct {
	Convert   string `short:"c" long:"convert" description:"convert the property list to a new format (c=list for list)" default:"" value-name:"FORMAT"`
	Output    string `short:"o" long:"out" description:"output filename" default:"" value-name:"FILE"`
	Indent    bool   `short:"I" long:"indent" description:"indent indentable output formats (xml, openstep, gnustep, json)"`
	Verbose   bool   `short:"v" long:"verbose" description:"log at debug level"`
	LogLevel  string `long:"log-level" description:"log level" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	LogFormat string `long:"log-format" description:"log format" default:"text" choice:"text" choice:"json"`
}

type outputFormat struct {
	name   string
	format int // plist format, or -1 for formats handled here
}

var outputFormats = map[string]outputFormat{
	"bplist":   {"Binary property list", plist.BinaryFormat},
	"xml":      {"XML property list", plist.XMLFormat},
	"openstep": {"OpenStep property list", plist.OpenStepFormat},
	"gnustep":  {"GNUStep property list", plist.GNUStepFormat},
	"json":     {"JSON", -1},
	"yaml":     {"YAML", -1},
}

func newLogger(opts *options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		level = logrus.WarnLevel
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	if opts.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(new(logrus.TextFormatter))
	}
	return log
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] FILE..."
	args, err := parser.Parse()
	if err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	log := newLogger(&opts)

	if opts.Convert == "list" {
		names := make([]string, 0, len(outputFormats))
		for k := range outputFormats {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(os.Stderr, "%-10s %s\n", k, outputFormats[k].name)
		}
		return
	}

	if len(args) < 1 {
		parser.WriteHelp(os.Stderr)
		os.Exit(2)
	}
	if opts.Output != "" && len(args) > 1 {
		log.Fatal("-o can only be used with a single input file")
	}

	for _, file := range args {
		if err := process(log, &opts, file); err != nil {
			log.WithError(err).WithField("file", file).Fatal("failed")
		}
	}
}

func process(log *logrus.Logger, opts *options, file string) (err error) {
	root, format, err := plist.ReadFile(file)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"file":   file,
		"format": plist.FormatNames[format],
	}).Debug("decoded property list")

	var out io.Writer = os.Stdout
	if opts.Output != "" {
		f, cerr := os.Create(opts.Output)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	}
	bw := bufio.NewWriter(out)
	defer func() {
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if opts.Convert == "" {
		prettyPrint(bw, root, 0)
		bw.WriteString("\n")
		return nil
	}

	of, ok := outputFormats[opts.Convert]
	if !ok {
		return fmt.Errorf("unknown output format %q", opts.Convert)
	}
	log.WithField("to", of.name).Debug("converting")

	switch opts.Convert {
	case "json":
		var data []byte
		if opts.Indent {
			data, err = json.MarshalIndent(root.Interface(), "", "\t")
		} else {
			data, err = json.Marshal(root.Interface())
		}
		if err != nil {
			return err
		}
		bw.Write(data)
		bw.WriteString("\n")
		return nil
	case "yaml":
		data, err := yaml.Marshal(toYAML(root))
		if err != nil {
			return err
		}
		_, err = bw.Write(data)
		return err
	}

	enc := plist.NewEncoderForFormat(bw, of.format)
	if opts.Indent {
		enc.Indent("\t")
	}
	return enc.Encode(root)
}

// toYAML converts a value to YAML-ready data, keeping dictionary order.
func toYAML(v plist.Value) interface{} {
	switch v := v.(type) {
	case *plist.Dict:
		ms := make(yaml.MapSlice, 0, v.Len())
		v.Range(func(k string, e plist.Value) bool {
			ms = append(ms, yaml.MapItem{Key: k, Value: toYAML(e)})
			return true
		})
		return ms
	case *plist.Array:
		out := make([]interface{}, v.Len())
		for i, e := range v.Values() {
			out[i] = toYAML(e)
		}
		return out
	case plist.UID:
		return map[string]uint64{"CF$UID": uint64(v)}
	}
	return v.Interface()
}

func prettyPrint(w *bufio.Writer, v plist.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := v.(type) {
	case *plist.Dict:
		fmt.Fprintf(w, "<dictionary> {\n")
		v.Range(func(k string, e plist.Value) bool {
			fmt.Fprintf(w, "%s  [%s] ", indent, k)
			prettyPrint(w, e, depth+1)
			w.WriteString("\n")
			return true
		})
		fmt.Fprintf(w, "%s}", indent)
	case *plist.Array:
		fmt.Fprintf(w, "<array> [\n")
		for i, e := range v.Values() {
			fmt.Fprintf(w, "%s  [%d] ", indent, i)
			prettyPrint(w, e, depth+1)
			w.WriteString("\n")
		}
		fmt.Fprintf(w, "%s]", indent)
	case plist.String:
		fmt.Fprintf(w, "%q", string(v))
	case plist.Number:
		switch {
		case v.IsBoolean():
			b, _ := v.Bool()
			fmt.Fprintf(w, "<bool> %v", b)
		case v.IsReal():
			f, _ := v.Float()
			fmt.Fprintf(w, "<real> %v", f)
		default:
			i, _ := v.Int()
			fmt.Fprintf(w, "<integer> %d", i)
		}
	case plist.Date:
		fmt.Fprintf(w, "<date> %s", v.Time().UTC().Format("2006-01-02 15:04:05 -0700"))
	case plist.Data:
		fmt.Fprintf(w, "<data> % x", []byte(v))
	case plist.UID:
		fmt.Fprintf(w, "<uid> %d", uint64(v))
	}
}
