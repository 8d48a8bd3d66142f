package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/steam"
)

type libraryFixture struct {
	users     *memUsers
	games     *memGames
	instances *memInstances
	lib       *fakeLibrary
	svc       *LibraryService
	user      model.User
}

func newLibraryFixture(t *testing.T, linked bool) *libraryFixture {
	t.Helper()
	f := &libraryFixture{users: newMemUsers(), games: newMemGames(), lib: &fakeLibrary{configured: true}}
	f.instances = newMemInstances(f.games)
	u := model.User{Username: "gamer", Role: model.RoleUser}
	if linked {
		u.SteamID = ptr("76561197960287930")
	}
	f.user = f.users.add(u)
	catalog := NewCatalogService(f.games, nil, &fakeCatalog{}, CatalogOptions{}, newTestClock().Now)
	f.svc = NewLibraryService(f.users, f.lib, catalog, f.instances, newTestClock().Now)
	return f
}

func TestSyncLibraryRequiresLinkedAccount(t *testing.T) {
	f := newLibraryFixture(t, false)
	_, err := f.svc.SyncLibrary(context.Background(), f.user.ID)
	if !errors.Is(err, apperr.ErrSteamAuth) {
		t.Fatalf("err = %v, want steam auth error", err)
	}
	if f.lib.calls != 0 {
		t.Error("steam api called for an unlinked user")
	}
}

func TestSyncLibraryRequiresAPIKey(t *testing.T) {
	f := newLibraryFixture(t, true)
	f.lib.configured = false
	if _, err := f.svc.SyncLibrary(context.Background(), f.user.ID); !errors.Is(err, apperr.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncLibraryUnknownUser(t *testing.T) {
	f := newLibraryFixture(t, true)
	if _, err := f.svc.SyncLibrary(context.Background(), 404); !errors.Is(err, apperr.ErrUserNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncLibraryPropagatesRemoteFailure(t *testing.T) {
	f := newLibraryFixture(t, true)
	f.lib.err = apperr.Remote("steam", errors.New("503"))
	if _, err := f.svc.SyncLibrary(context.Background(), f.user.ID); !errors.Is(err, apperr.ErrRemoteAPI) {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncLibrarySkipsMalformedEntries(t *testing.T) {
	f := newLibraryFixture(t, true)
	f.lib.games = []steam.OwnedGame{
		{AppID: ptr[int64](570), Name: "Dota 2", PlaytimeForever: 1200, RTimeLastPlayed: ptr[int64](1700000000)},
		{AppID: nil, Name: "No Id"},
		{AppID: ptr[int64](440), Name: "  "},
		{AppID: ptr[int64](620), Name: "Portal 2", PlaytimeForever: 30},
	}
	rep, err := f.svc.SyncLibrary(context.Background(), f.user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Total != 4 || rep.Imported != 2 || rep.Failed != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if f.games.count(model.SourceSteam) != 2 {
		t.Errorf("steam games = %d, want 2", f.games.count(model.SourceSteam))
	}

	list := f.instances.forUser(f.user.ID)
	if len(list) != 2 {
		t.Fatalf("instances = %d", len(list))
	}
	dota := list[0]
	if dota.Status != model.StatusPlaying || *dota.PlayTime != 1200 {
		t.Errorf("dota instance = %+v", dota)
	}
	if dota.LastPlayed == nil || !dota.LastPlayed.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("last played = %v", dota.LastPlayed)
	}
	if list[1].LastPlayed != nil {
		t.Errorf("portal last played = %v, want unset", list[1].LastPlayed)
	}

	g, err := f.games.GetByExternal(context.Background(), "570", model.SourceSteam)
	if err != nil {
		t.Fatal(err)
	}
	if g.BackgroundImage != steam.HeaderImageURL(570) || g.Slug != "dota-2" {
		t.Errorf("game = %+v", g)
	}
}

func TestSyncLibraryIsRepeatable(t *testing.T) {
	f := newLibraryFixture(t, true)
	ctx := context.Background()
	f.lib.games = []steam.OwnedGame{{AppID: ptr[int64](570), Name: "Dota 2", PlaytimeForever: 10, RTimeLastPlayed: ptr[int64](1600000000)}}
	if _, err := f.svc.SyncLibrary(ctx, f.user.ID); err != nil {
		t.Fatal(err)
	}

	f.lib.games = []steam.OwnedGame{{AppID: ptr[int64](570), Name: "Dota 2", PlaytimeForever: 99, RTimeLastPlayed: ptr[int64](0)}}
	rep, err := f.svc.SyncLibrary(ctx, f.user.ID)
	if err != nil || rep.Imported != 1 {
		t.Fatal(rep, err)
	}
	list := f.instances.forUser(f.user.ID)
	if len(list) != 1 {
		t.Fatalf("instances = %d, want 1", len(list))
	}
	if *list[0].PlayTime != 99 {
		t.Errorf("play time = %d, want overwritten to 99", *list[0].PlayTime)
	}
	if list[0].LastPlayed == nil || !list[0].LastPlayed.Equal(time.Unix(1600000000, 0)) {
		t.Errorf("zero rtime must keep last played, got %v", list[0].LastPlayed)
	}
}

func TestSyncLibraryKeepsExistingSteamGame(t *testing.T) {
	f := newLibraryFixture(t, true)
	existing := f.games.put(model.Game{Title: "Dota 2 (Classic)", ExternalID: "570", Source: model.SourceSteam, BackgroundImage: "mine"})
	f.lib.games = []steam.OwnedGame{{AppID: ptr[int64](570), Name: "Dota 2"}}
	if _, err := f.svc.SyncLibrary(context.Background(), f.user.ID); err != nil {
		t.Fatal(err)
	}
	g, _ := f.games.GetByID(context.Background(), existing.ID)
	if g.Title != "Dota 2 (Classic)" || g.BackgroundImage != "mine" {
		t.Errorf("existing game changed: %+v", g)
	}
	list := f.instances.forUser(f.user.ID)
	if len(list) != 1 || list[0].GameID != existing.ID {
		t.Fatalf("instances = %+v", list)
	}
}

func TestSyncLibraryKeepsUserStatus(t *testing.T) {
	f := newLibraryFixture(t, true)
	ctx := context.Background()
	game := f.games.put(model.Game{Title: "Portal 2", ExternalID: "620", Source: model.SourceSteam})
	f.instances.Create(ctx, model.GameInstance{UserID: f.user.ID, GameID: game.ID, Status: model.StatusCompleted})
	f.lib.games = []steam.OwnedGame{{AppID: ptr[int64](620), Name: "Portal 2", PlaytimeForever: 600}}
	if _, err := f.svc.SyncLibrary(ctx, f.user.ID); err != nil {
		t.Fatal(err)
	}
	gi := f.instances.forUser(f.user.ID)[0]
	if gi.Status != model.StatusCompleted || *gi.PlayTime != 600 {
		t.Errorf("instance = %+v", gi)
	}
}

func TestImportSingleRecoversFromCreateRace(t *testing.T) {
	f := newLibraryFixture(t, false)
	ctx := context.Background()
	game := f.games.put(model.Game{Title: "Hades", ExternalID: "1145360", Source: model.SourceSteam})
	f.instances.Create(ctx, model.GameInstance{UserID: f.user.ID, GameID: game.ID, Status: model.StatusDropped})
	f.instances.hideNext = true

	gi, err := f.svc.ImportSingle(ctx, f.user.ID, steam.OwnedGame{AppID: ptr[int64](1145360), Name: "Hades", PlaytimeForever: 42})
	if err != nil {
		t.Fatal(err)
	}
	if gi.Status != model.StatusDropped || *gi.PlayTime != 42 {
		t.Errorf("instance = %+v", gi)
	}
	if n := len(f.instances.forUser(f.user.ID)); n != 1 {
		t.Errorf("instances = %d, want 1", n)
	}
}

func TestImportSingleRejectsMalformedEntry(t *testing.T) {
	f := newLibraryFixture(t, false)
	if _, err := f.svc.ImportSingle(context.Background(), f.user.ID, steam.OwnedGame{Name: "x"}); !errors.Is(err, errMalformedEntry) {
		t.Fatalf("err = %v", err)
	}
}
