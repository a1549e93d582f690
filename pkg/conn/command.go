package conn

import (
	"time"

	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/metrics"
	"github.com/nverba/redwire/pkg/resp"
)

func protocolQueryError(v resp.Value) *common.RedisError {
	return common.NewErrorDetail(common.ResponseError,
		"EXEC reply was not an array", v.String())
}

// Cmd accumulates one command and its arguments. Argument encoding is
// delegated to the resp package's encoder capability; the first
// encoding failure is remembered and surfaced when the command is
// packed or queried.
type Cmd struct {
	name string
	args [][]byte
	err  error
}

func NewCmd(name string, args ...any) *Cmd {
	c := &Cmd{name: name, args: [][]byte{[]byte(name)}}
	for _, arg := range args {
		c.Arg(arg)
	}
	return c
}

func (c *Cmd) Arg(v any) *Cmd {
	if c.err != nil {
		return c
	}
	args, err := resp.AppendArgs(c.args, v)
	if err != nil {
		c.err = err
		return c
	}
	c.args = args
	return c
}

// Pack encodes the command into wire bytes.
func (c *Cmd) Pack() []byte {
	return resp.PackCommand(c.args...)
}

// Query sends the command and reads its single reply.
func (c *Cmd) Query(con ConnectionLike) (resp.Value, error) {
	if c.err != nil {
		return resp.Value{}, c.err
	}
	start := time.Now()
	v, err := con.SendCommand(c.Pack())
	collector := metrics.Get()
	collector.IncrementCommandCounter(c.name)
	collector.RecordCommandLatency(c.name, time.Since(start))
	if err != nil {
		collector.IncrementErrorCounter(c.name)
		return resp.Value{}, err
	}
	return v, nil
}

// QueryInto sends the command and decodes the reply through a decoder
// capability instead of handing back the raw value.
func (c *Cmd) QueryInto(con ConnectionLike, into resp.ValueDecoder) error {
	v, err := c.Query(con)
	if err != nil {
		return err
	}
	return into.DecodeValue(v)
}

// Pipeline accumulates commands for batched execution. In atomic mode
// the batch is wrapped in MULTI/EXEC and executes all-or-nothing.
type Pipeline struct {
	cmds    []*Cmd
	ignored []bool
	atomic  bool
}

func Pipe() *Pipeline {
	return &Pipeline{}
}

// Cmd starts a new command in the pipeline. Further Arg calls apply to
// it until the next Cmd call.
func (p *Pipeline) Cmd(name string, args ...any) *Pipeline {
	p.cmds = append(p.cmds, NewCmd(name, args...))
	p.ignored = append(p.ignored, false)
	return p
}

func (p *Pipeline) Arg(v any) *Pipeline {
	if len(p.cmds) > 0 {
		p.cmds[len(p.cmds)-1].Arg(v)
	}
	return p
}

// Ignore drops the most recent command's reply from the query result.
func (p *Pipeline) Ignore() *Pipeline {
	if len(p.ignored) > 0 {
		p.ignored[len(p.ignored)-1] = true
	}
	return p
}

// Atomic switches the pipeline into all-or-nothing transaction mode.
func (p *Pipeline) Atomic() *Pipeline {
	p.atomic = true
	return p
}

func (p *Pipeline) Len() int {
	return len(p.cmds)
}

func (p *Pipeline) pack() ([]byte, error) {
	var out []byte
	if p.atomic {
		out = append(out, NewCmd("MULTI").Pack()...)
	}
	for _, c := range p.cmds {
		if c.err != nil {
			return nil, c.err
		}
		out = append(out, c.Pack()...)
	}
	if p.atomic {
		out = append(out, NewCmd("EXEC").Pack()...)
	}
	return out, nil
}

// Query executes the pipeline. In atomic mode a nil (non-error) result
// means the server aborted the transaction because a watched key
// changed. Replies of ignored commands are filtered out.
func (p *Pipeline) Query(con ConnectionLike) ([]resp.Value, error) {
	if len(p.cmds) == 0 {
		return []resp.Value{}, nil
	}
	packed, err := p.pack()
	if err != nil {
		return nil, err
	}

	if p.atomic {
		// MULTI and the queued acks are skipped; the single EXEC reply
		// carries the results.
		replies, err := con.SendPipeline(packed, len(p.cmds)+1, 1)
		if err != nil {
			return nil, err
		}
		exec := replies[0]
		if exec.Kind == resp.Nil {
			return nil, nil
		}
		results, ok := exec.AsSequence()
		if !ok {
			return nil, protocolQueryError(exec)
		}
		return p.filterIgnored(results), nil
	}

	replies, err := con.SendPipeline(packed, 0, len(p.cmds))
	if err != nil {
		return nil, err
	}
	return p.filterIgnored(replies), nil
}

func (p *Pipeline) filterIgnored(replies []resp.Value) []resp.Value {
	out := make([]resp.Value, 0, len(replies))
	for i, v := range replies {
		if i < len(p.ignored) && p.ignored[i] {
			continue
		}
		out = append(out, v)
	}
	return out
}
