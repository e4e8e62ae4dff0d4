package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"stacingest/adapters/schemafetch"
	"stacingest/domain/ingest"
	"stacingest/internal"
	"stacingest/internal/extension"
	"stacingest/internal/normalize"
	"stacingest/internal/submission"
	"stacingest/internal/validation"
	"stacingest/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stacingest-cli",
		Short:         "Validate and inspect STAC ingest records offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newNormalizeCmd(),
		newExtensionCmd(),
		newSchemaCmd(),
		newPathCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	var typ, mode, output string
	var fields []string
	var skipNormalize bool

	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate a dataset or collection record",
		Long: `Validate a JSON or YAML record against the base schema and semantic rules.

Example: stacingest-cli validate no2.json --type dataset --mode strict --extension-field cube:dimensions`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ingest.ParseIngestionType(typ)
			if err != nil {
				return err
			}
			m, err := validation.ParseMode(mode)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			v, err := validation.New(internal.DiscardLogger())
			if err != nil {
				return err
			}
			if !skipNormalize {
				doc = normalize.Normalize(doc, v.ContainerFields(t))
			}
			res := v.Validate(doc, validation.Options{Type: t, Mode: m, ExtensionFields: fields})

			if err := writeResult(cmd.OutOrStdout(), output, res); err != nil {
				return err
			}
			if !res.Valid() {
				return fmt.Errorf("%d validation error(s)", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "dataset", "Ingestion type: dataset or collection")
	cmd.Flags().StringVar(&mode, "mode", "permissive", "Validation mode: strict or permissive")
	cmd.Flags().StringSliceVar(&fields, "extension-field", nil, "Field declared by a loaded extension (strict mode)")
	cmd.Flags().BoolVar(&skipNormalize, "raw", false, "Validate the document as given, without normalizing it first")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")

	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Print the record the way it would be submitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ingest.ParseIngestionType(typ)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			v, err := validation.New(internal.DiscardLogger())
			if err != nil {
				return err
			}
			out, err := normalize.Normalize(doc, v.ContainerFields(t)).MarshalIndent()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&typ, "type", "dataset", "Ingestion type: dataset or collection")
	return cmd
}

func newExtensionCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "extension [schema-url]",
		Short: "Fetch an extension schema and list the fields it declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := internal.NewDefaultLogger()
			resolver := extension.NewResolver(schemafetch.New(timeout, logger), extension.ResolverOptions{}, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := resolver.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(renderDescriptor(d))
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Fetch timeout")
	return cmd
}

// payloadTypes are the API payloads the schema command can describe
var payloadTypes = map[string]any{
	"ingest-payload":    ports.IngestPayload{},
	"pr-result":         ports.PRResult{},
	"retrieved-ingest":  ports.RetrievedIngest{},
	"validation-result": validation.Result{},
	"submission-status": submission.Status{},
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "schema [payload]",
		Short:     "Print the JSON Schema of an API payload",
		Long:      "Print the JSON Schema of an API payload: " + joinKeys(payloadTypes),
		Args:      cobra.ExactArgs(1),
		ValidArgs: sortedKeys(payloadTypes),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := payloadTypes[args[0]]
			if !ok {
				return fmt.Errorf("unknown payload %q (want one of %s)", args[0], joinKeys(payloadTypes))
			}
			r := &jsonschema.Reflector{DoNotReference: true}
			out, err := json.MarshalIndent(r.Reflect(v), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	return cmd
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path [dataset|collection] [identity]",
		Short: "Print the repository path a record is committed to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := ingest.ParseIngestionType(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ingest.StagingPath(t, args[1]))
			return err
		},
	}
}

// readDocument loads a JSON or YAML object from path, or stdin for "-"
func readDocument(stdin io.Reader, path string) (ingest.Document, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	js, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return ingest.Decode(js)
}
