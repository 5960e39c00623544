package main

import (
	"context"
	"net/http"
	"os"

	"go.uber.org/zap"

	"shopflow/auth"
	"shopflow/casefile"
	"shopflow/config"
	"shopflow/customer"
	"shopflow/db"
	"shopflow/logging"
	"shopflow/notify"
	"shopflow/stage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DB.URL)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	authService := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret)
	stageRepo := stage.NewRepository(pool)
	customerRepo := customer.NewRepository(pool)

	emailSender := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	textSender := notify.NewWhatsAppSender(notify.WhatsAppConfig{
		BaseURL:      cfg.WhatsApp.BaseURL,
		Token:        cfg.WhatsApp.Token,
		FromNumberID: cfg.WhatsApp.FromNumberID,
	}, nil)

	dispatcher := notify.NewDispatcher(customerRepo, stageRepo, emailSender, textSender, log, cfg.Dispatch.ChannelTimeout)
	pipeline := notify.NewPipeline(dispatcher, notify.NewOutcomeRecorder(pool), log)

	caseService := casefile.NewService(pool, casefile.NewRepository(), pipeline, log)

	server := &Server{
		log:         log,
		authService: authService,
		stageRepo:   stageRepo,
		caseService: caseService,
		partyReader: customerRepo,
	}

	log.Info("api listening", zap.String("addr", cfg.HTTP.Addr))
	if err := http.ListenAndServe(cfg.HTTP.Addr, server.Routes()); err != nil {
		log.Fatal("http server", zap.Error(err))
	}
}
