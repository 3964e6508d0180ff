package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronodrachma/elastic/pkg/core/types"
	"github.com/chronodrachma/elastic/pkg/rpc"
	"github.com/chronodrachma/elastic/pkg/wallet"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key file and print its ledger address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, priv, err := wallet.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(keygenOut, priv); err != nil {
			return fmt.Errorf("save key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), wallet.AddressOf(priv).Hex())
		return nil
	},
}

var signFlags struct {
	key       string
	kind      string
	from      string
	to        string
	amount    string
	interval  uint64
	maxPct    uint8
	nonce     uint64
	timestamp int64
	submit    string
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an op and print it as JSON for POST /op",
	Long: `Builds and signs an op with the given key. The output is the request body
accepted by POST /op. With --submit the op is posted to that node URL instead.

Example:
  elasticd sign --key alice.key --kind transfer --to <hex> --amount 1000 --nonce 0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := buildOp()
		if err != nil {
			return err
		}
		key, err := wallet.LoadKey(signFlags.key)
		if err != nil {
			return fmt.Errorf("load key: %w", err)
		}
		if err := wallet.SignOp(op, key); err != nil {
			return err
		}

		body, err := json.Marshal(rpc.NewOpRequest(op))
		if err != nil {
			return err
		}
		if signFlags.submit == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(body))
			return nil
		}

		resp, err := http.Post(signFlags.submit+"/op", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("submit op: %w", err)
		}
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(out)))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node rejected op: %s", resp.Status)
		}
		return nil
	},
}

func buildOp() (*types.Op, error) {
	kind, err := types.ParseOpKind(signFlags.kind)
	if err != nil {
		return nil, err
	}
	op := &types.Op{
		Kind:          kind,
		Timestamp:     time.Unix(signFlags.timestamp, 0),
		Interval:      signFlags.interval,
		MaxPercentage: signFlags.maxPct,
		Nonce:         signFlags.nonce,
	}
	if signFlags.timestamp == 0 {
		op.Timestamp = time.Now()
	}
	if signFlags.from != "" {
		if op.From, err = types.AddressFromHex(signFlags.from); err != nil {
			return nil, fmt.Errorf("--from: %w", err)
		}
	}
	if signFlags.to != "" {
		if op.To, err = types.AddressFromHex(signFlags.to); err != nil {
			return nil, fmt.Errorf("--to: %w", err)
		}
	}
	if signFlags.amount != "" {
		amount, err := types.ParseAmount(signFlags.amount)
		if err != nil {
			return nil, fmt.Errorf("--amount: %w", err)
		}
		op.Amount = *amount
	}
	return op, nil
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "node.key", "key file to write")

	f := signCmd.Flags()
	f.StringVar(&signFlags.key, "key", "", "private key file")
	f.StringVar(&signFlags.kind, "kind", "", "op kind (transfer, approve, transferFrom, increaseAllowance, decreaseAllowance, updatePrice, setRebaseParameters, rebase)")
	f.StringVar(&signFlags.from, "from", "", "owner address for transferFrom")
	f.StringVar(&signFlags.to, "to", "", "recipient or spender address")
	f.StringVar(&signFlags.amount, "amount", "", "amount in fragments, or price for updatePrice")
	f.Uint64Var(&signFlags.interval, "interval", 0, "rebase interval in seconds for setRebaseParameters")
	f.Uint8Var(&signFlags.maxPct, "max-pct", 0, "max rebase percentage for setRebaseParameters")
	f.Uint64Var(&signFlags.nonce, "nonce", 0, "caller nonce (GET /nonce)")
	f.Int64Var(&signFlags.timestamp, "timestamp", 0, "unix timestamp (default now)")
	f.StringVar(&signFlags.submit, "submit", "", "node base URL to post the op to")
	signCmd.MarkFlagRequired("key")
	signCmd.MarkFlagRequired("kind")
}
