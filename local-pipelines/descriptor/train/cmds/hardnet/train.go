package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiteco/patchdesc/kite-go/descriptor/config"
	"github.com/kiteco/patchdesc/kite-go/descriptor/train"
	"github.com/kiteco/patchdesc/kite-golib/kitelog"
)

type trainArgs struct {
	config.Args
	Progress bool `arg:"--progress" help:"show a progress bar per epoch"`
}

func (a *trainArgs) Handle() error {
	cfg, err := config.Resolve(a.Args)
	if err != nil {
		return err
	}
	log := kitelog.New(kitelog.Options{JSON: cfg.JSONLogs, Debug: cfg.Debug}).With("run", cfg.SaveName())
	defer log.Sync()

	t, err := train.Build(cfg, log)
	if err != nil {
		return err
	}
	t.Progress = a.Progress

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case s := <-sigs:
			log.Warnf("received %v, stopping", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := t.Run(ctx); err != nil {
		log.Errorf("training failed: %v", err)
		return err
	}
	log.Infof("done, checkpoints in %s", cfg.RunDir())
	return nil
}
