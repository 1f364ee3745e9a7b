package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/headers"
)

const (
	encodingHex    = "hex"
	encodingBase64 = "base64"
	encodingRaw    = "raw"
)

// parsePairs turns key=value arguments into an ordered header map. The value
// may contain '='; the key may not.
func parsePairs(args []string) (*headers.Map, error) {
	h := headers.New()
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not key=value", headers.ErrInvalidInput, arg)
		}
		h.Set(key, value)
	}
	return h, nil
}

func encodeBytes(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case encodingHex:
		return []byte(hex.EncodeToString(data) + "\n"), nil
	case encodingBase64:
		return []byte(base64.StdEncoding.EncodeToString(data) + "\n"), nil
	case encodingRaw:
		return data, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q (want hex, base64 or raw)", encoding)
	}
}

func decodeBytes(input []byte, encoding string) ([]byte, error) {
	switch encoding {
	case encodingHex:
		return hex.DecodeString(string(bytes.Join(bytes.Fields(input), nil)))
	case encodingBase64:
		return base64.StdEncoding.DecodeString(string(bytes.TrimSpace(input)))
	case encodingRaw:
		return input, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q (want hex, base64 or raw)", encoding)
	}
}

func newEncodeCmd() *cobra.Command {
	encodeCmd := &cobra.Command{
		Use:   "encode <key=value>...",
		Short: "Encode headers into extension bytes",
		Long: `Encode key=value pairs, in argument order, into the header format stored in
a message extension.

Examples:
  rtsq encode NServiceBus.FailedQ=orders trace=abc
  rtsq encode --encoding raw --out ext.bin key1=value1 key2=value2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			encoding, _ := cmd.Flags().GetString("encoding")
			outPath, _ := cmd.Flags().GetString("out")

			h, err := parsePairs(args)
			if err != nil {
				return err
			}
			data, err := headers.Encode(h)
			if err != nil {
				return err
			}
			rendered, err := encodeBytes(data, encoding)
			if err != nil {
				return err
			}

			if outPath != "" {
				return os.WriteFile(outPath, rendered, 0600)
			}
			_, err = cmd.OutOrStdout().Write(rendered)
			return err
		},
	}

	encodeCmd.Flags().String("encoding", encodingHex, "Output encoding: hex, base64 or raw")
	encodeCmd.Flags().String("out", "", "Write to a file instead of stdout")
	return encodeCmd
}

func newDecodeCmd() *cobra.Command {
	decodeCmd := &cobra.Command{
		Use:   "decode [data]",
		Short: "Decode extension bytes into headers",
		Long: `Decode header bytes given as an argument, read from --in, or read from stdin.

Examples:
  rtsq decode 0100000004000000...
  rtsq decode --encoding raw --in ext.bin -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			encoding, _ := cmd.Flags().GetString("encoding")
			inPath, _ := cmd.Flags().GetString("in")

			var input []byte
			var err error
			switch {
			case len(args) == 1:
				input = []byte(args[0])
			case inPath != "":
				input, err = os.ReadFile(inPath)
			default:
				input, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			data, err := decodeBytes(input, encoding)
			if err != nil {
				return fmt.Errorf("invalid %s input: %w", encoding, err)
			}

			h, err := headers.Decode(data)
			if err != nil {
				return err
			}
			return printHeaders(cmd, a.output, h)
		},
	}

	decodeCmd.Flags().String("encoding", encodingHex, "Input encoding: hex, base64 or raw")
	decodeCmd.Flags().String("in", "", "Read from a file instead of an argument or stdin")
	return decodeCmd
}

func printHeaders(cmd *cobra.Command, format string, h *headers.Map) error {
	out := cmd.OutOrStdout()
	if format == formatJSON {
		return printJSON(out, h)
	}
	if h.Len() == 0 {
		fmt.Fprintln(out, "No headers")
		return nil
	}

	rows := make([][]string, 0, h.Len())
	h.Range(func(k, v string) bool {
		rows = append(rows, []string{k, v})
		return true
	})
	printTable(out, []string{"Key", "Value"}, rows)
	return nil
}
