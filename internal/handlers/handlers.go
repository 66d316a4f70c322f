package handlers

import (
	"time"

	"media-engine/internal/access"
	"media-engine/internal/cache"
	"media-engine/internal/database"
	"media-engine/internal/hls"
	"media-engine/internal/share"
	"media-engine/internal/startup"
	"media-engine/internal/streaming"
	"media-engine/internal/thumbnail"
	"media-engine/internal/transcoder"
)

type Handlers struct {
	db          *database.Database
	cache       cache.Store
	resolver    *access.Resolver
	issuer      *share.Issuer
	planner     *transcoder.Planner
	coordinator *transcoder.Coordinator
	preparer    *hls.Preparer
	thumbs      *thumbnail.Generator
	responder   *streaming.Responder
	mediaDir    string
	startedAt   time.Time
}

func New(
	db *database.Database,
	store cache.Store,
	resolver *access.Resolver,
	issuer *share.Issuer,
	planner *transcoder.Planner,
	coordinator *transcoder.Coordinator,
	preparer *hls.Preparer,
	thumbs *thumbnail.Generator,
	config *startup.Config,
) *Handlers {
	return &Handlers{
		db:          db,
		cache:       store,
		resolver:    resolver,
		issuer:      issuer,
		planner:     planner,
		coordinator: coordinator,
		preparer:    preparer,
		thumbs:      thumbs,
		responder:   streaming.NewResponder(config.MaxChunkBytes),
		mediaDir:    config.MediaDir,
		startedAt:   time.Now(),
	}
}
