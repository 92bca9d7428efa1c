package supervisor

import (
	"context"
	"io"

	"github.com/codefionn/promethean-bridge/internal/channel"
	"github.com/codefionn/promethean-bridge/internal/config"
	"github.com/codefionn/promethean-bridge/internal/consts"
	"github.com/codefionn/promethean-bridge/internal/pidfile"
	"github.com/codefionn/promethean-bridge/internal/socketserver"
)

// ServeChannel is the child side of ExecSpawner. Requests are written to out,
// responses read from in. It returns when the server stops or in reaches EOF.
func ServeChannel(ctx context.Context, in io.Reader, out io.Writer, cfg config.ServerConfig, pids *pidfile.Pidfile) error {
	inbound := channel.NewStreamSender(out)
	outbound := channel.NewStreamReceiver(in, consts.QueueCapacity)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-outbound.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := socketserver.NewServer(cfg, inbound, outbound)
	if pids != nil {
		srv.SetPidfile(pids)
	}
	err := srv.Run(ctx)
	inbound.Close()
	return err
}
