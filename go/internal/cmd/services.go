package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/hoot/go/internal/quiz"
	"github.com/mcdev12/hoot/go/internal/room"
)

type Services struct {
	Rooms   *room.App
	Quizzes *quiz.App
}

func setupServices(pool *pgxpool.Pool) *Services {
	// Database layer -> Repository layer -> App layer
	clock := clockwork.NewRealClock()

	roomRepo := room.NewRepository(pool)
	roomApp := room.NewApp(roomRepo, clock)

	quizRepo := quiz.NewRepository(pool)
	quizApp := quiz.NewApp(quizRepo)

	return &Services{
		Rooms:   roomApp,
		Quizzes: quizApp,
	}
}
