package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type payloadErr struct{ body string }

func (e payloadErr) Error() string   { return "rejected" }
func (e payloadErr) Payload() []byte { return []byte(e.body) }

func TestRecoverGas(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   GasSummary
		wantOK bool
	}{
		{"plain error", errors.New("dial tcp: refused"), GasSummary{}, false},
		{"empty payload", &RPCError{Code: 1}, GasSummary{}, false},
		{"invalid json", payloadErr{"{nope"}, GasSummary{}, false},
		{
			"top level effects",
			payloadErr{`{"effects":{"gasUsed":{"computationCost":"10","storageCost":"20","storageRebate":"5"}}}`},
			GasSummary{10, 20, 5}, true,
		},
		{
			"nested data",
			payloadErr{`{"data":{"effects":{"gasUsed":{"computationCost":7}}}}`},
			GasSummary{ComputationCost: 7}, true,
		},
		{
			"bare gasUsed",
			payloadErr{`{"gasUsed":{"computationCost":"1","storageCost":"2","storageRebate":"3"}}`},
			GasSummary{1, 2, 3}, true,
		},
		{
			"first location wins",
			payloadErr{`{"effects":{"gasUsed":{"computationCost":"1"}},"gasUsed":{"computationCost":"9"}}`},
			GasSummary{ComputationCost: 1}, true,
		},
		{
			"malformed first location falls through",
			payloadErr{`{"effects":{"gasUsed":{"computationCost":"-1"}},"gasUsed":{"computationCost":"9"}}`},
			GasSummary{ComputationCost: 9}, true,
		},
		{
			"wrapped",
			fmt.Errorf("submit: %w", payloadErr{`{"gasUsed":{"computationCost":"4"}}`}),
			GasSummary{ComputationCost: 4}, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RecoverGas(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
