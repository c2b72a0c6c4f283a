package transport

import (
	"time"

	"github.com/danmuck/pddbwire/internal/observability"
	"github.com/danmuck/pddbwire/internal/wire"
	"github.com/rs/zerolog/log"
)

type instrumented struct {
	next Transport
	node string
}

// Instrument records metrics and debug logs for every transfer through next.
func Instrument(next Transport, node string) Transport {
	observability.RegisterMetrics()
	return &instrumented{next: next, node: node}
}

func (t *instrumented) Transfer(buf *wire.Buffer, conn ConnectionID, op Opcode, mode Mode) (*wire.Buffer, int, error) {
	sent := buf.Len()
	start := time.Now()
	out, n, err := t.next.Transfer(buf, conn, op, mode)
	elapsed := time.Since(start)
	observability.RecordTransfer(t.node, uint32(op), mode.String(), sent, n, elapsed, err == nil)
	if err != nil {
		log.Warn().Msgf("transport.Transfer node=%s conn=%d op=%d mode=%s err=%v", t.node, conn, op, mode, err)
		return out, n, err
	}
	log.Debug().Msgf("transport.Transfer node=%s conn=%d op=%d mode=%s sent=%d valid=%d took=%s", t.node, conn, op, mode, sent, n, elapsed)
	return out, n, nil
}
