package repository

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/stroller-protocol/custos/internal/models"
)

func TestMongoWatcherModel(t *testing.T) {
	doc := mongoWatcher{ID: "w1", Services: map[string]string{"telegram": "42"}}
	watcher := doc.model()
	if watcher.Channel != models.ChannelTelegram || watcher.SubscriberID != "42" || watcher.ID != "w1" {
		t.Fatalf("unexpected watcher %+v", watcher)
	}
	if key := serviceKey(models.ChannelTelegram); key != "services.telegram" {
		t.Fatalf("unexpected service key %s", key)
	}
}

func TestMongoErrTranslation(t *testing.T) {
	if err := mongoErr(mongo.ErrNoDocuments, "get wallet"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err := mongoErr(fmt.Errorf("socket closed"), "get wallet")
	if !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
