package records

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/auth"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/session"
)

func testProvider(t *testing.T, resourceType string) (*Provider, context.Context, *session.Store) {
	t.Helper()
	store := session.NewStore(zerolog.Nop())
	p := NewProvider(resourceType, store, nil, zerolog.Nop())
	ctx := sessionContext(store, "t1", "https://pod.example/u1#me")
	return p, ctx, store
}

func sessionContext(store *session.Store, tokenID, subject string) context.Context {
	tc := &auth.TokenContext{Token: "tok", TokenID: tokenID, Subject: subject}
	store.GetOrCreate(tc.SessionKey())
	return auth.WithContext(context.Background(), tc)
}

func doe() fhir.Resource {
	return fhir.Resource{
		"resourceType": "Patient",
		"name": []interface{}{
			map[string]interface{}{"family": "Doe"},
		},
	}
}

func TestProvider_CreateAssignsIDAndVersion(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)

	created, err := p.Create(ctx, doe())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID() != "1" {
		t.Errorf("expected server-assigned id 1, got %s", created.ID())
	}
	if created.VersionID() != "1" {
		t.Errorf("expected version 1, got %s", created.VersionID())
	}
	meta := created.GetMap("meta")
	if meta["lastUpdated"] == nil {
		t.Error("expected lastUpdated stamped")
	}

	read, err := p.Read(ctx, "1", nil)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	family := read.GetList("name")[0].(map[string]interface{})["family"]
	if family != "Doe" {
		t.Errorf("round trip lost body, got %v", family)
	}
}

func TestProvider_CreateDoesNotAliasCallerValue(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)

	input := doe()
	created, err := p.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// mutating either the input or the returned value must not affect the store
	input.GetList("name")[0].(map[string]interface{})["family"] = "Hacked"
	created.GetList("name")[0].(map[string]interface{})["family"] = "AlsoHacked"

	read, _ := p.Read(ctx, "1", nil)
	family := read.GetList("name")[0].(map[string]interface{})["family"]
	if family != "Doe" {
		t.Errorf("store aliased a caller value, got %v", family)
	}
}

func TestProvider_ReadMutationDoesNotAffectStore(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	if _, err := p.Create(ctx, doe()); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, _ := p.Read(ctx, "1", nil)
	first["status"] = "tampered"
	first.GetList("name")[0].(map[string]interface{})["family"] = "Tampered"

	second, _ := p.Read(ctx, "1", nil)
	if second["status"] != nil {
		t.Error("read value aliased stored state")
	}
	if second.GetList("name")[0].(map[string]interface{})["family"] != "Doe" {
		t.Error("read value aliased nested stored state")
	}
}

func TestProvider_UpdateIncrementsVersion(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	if _, err := p.Create(ctx, doe()); err != nil {
		t.Fatalf("create: %v", err)
	}

	smith := doe()
	smith.GetList("name")[0].(map[string]interface{})["family"] = "Smith"
	updated, err := p.Update(ctx, "1", smith)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.VersionID() != "2" {
		t.Errorf("expected version 2, got %s", updated.VersionID())
	}

	// prior version still readable by explicit version
	v1 := int64(1)
	old, err := p.Read(ctx, "1", &v1)
	if err != nil {
		t.Fatalf("vread: %v", err)
	}
	if old.GetList("name")[0].(map[string]interface{})["family"] != "Doe" {
		t.Error("expected version 1 to keep Doe")
	}

	latest, _ := p.Read(ctx, "1", nil)
	if latest.GetList("name")[0].(map[string]interface{})["family"] != "Smith" {
		t.Error("expected latest to be Smith")
	}
}

func TestProvider_UpdateOfUnknownIDCreatesVersionOne(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)

	updated, err := p.Update(ctx, "42", doe())
	if err != nil {
		t.Fatalf("update-as-create: %v", err)
	}
	if updated.VersionID() != "1" {
		t.Errorf("expected version 1, got %s", updated.VersionID())
	}
	if _, err := p.Read(ctx, "42", nil); err != nil {
		t.Errorf("expected readable resource, got %v", err)
	}
}

func TestProvider_DeleteSemantics(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	if _, err := p.Create(ctx, doe()); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := p.Delete(ctx, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := p.Read(ctx, "1", nil)
	if !fhir.IsGone(err) {
		t.Errorf("expected gone, got %v", err)
	}

	// explicit version of a tombstoned id is also gone
	v1 := int64(1)
	_, err = p.Read(ctx, "1", &v1)
	if !fhir.IsGone(err) {
		t.Errorf("expected gone for versioned read, got %v", err)
	}

	// unknown id is not found, and no tombstone is created
	_, err = p.Read(ctx, "999", nil)
	if !fhir.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := p.Delete(ctx, "999"); !fhir.IsNotFound(err) {
		t.Errorf("delete of unknown id: expected not found, got %v", err)
	}
}

func TestProvider_ReadMissingVersionIsNotFound(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	if _, err := p.Create(ctx, doe()); err != nil {
		t.Fatalf("create: %v", err)
	}
	v9 := int64(9)
	if _, err := p.Read(ctx, "1", &v9); !fhir.IsNotFound(err) {
		t.Errorf("expected not found for missing version, got %v", err)
	}
}

func TestProvider_NoIDReuseAfterDelete(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	first, _ := p.Create(ctx, doe())
	if err := p.Delete(ctx, first.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second, _ := p.Create(ctx, doe())
	if second.ID() == first.ID() {
		t.Errorf("ids must not be reused, got %s twice", first.ID())
	}
}

func TestProvider_SearchAllSkipsTombstones(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	p.Create(ctx, doe())
	p.Create(ctx, doe())
	p.Delete(ctx, "1")

	all, err := p.SearchAll(ctx)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 live resource, got %d", len(all))
	}
	if all[0].ID() != "2" {
		t.Errorf("expected id 2, got %s", all[0].ID())
	}
}

func TestProvider_SearchByID(t *testing.T) {
	p, ctx, _ := testProvider(t, fhir.TypePatient)
	p.Create(ctx, doe())

	hits, err := p.SearchByID(ctx, "1")
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d (%v)", len(hits), err)
	}

	// tombstoned and absent ids yield empty results, not errors
	p.Delete(ctx, "1")
	hits, err = p.SearchByID(ctx, "1")
	if err != nil || len(hits) != 0 {
		t.Errorf("tombstoned id: expected empty result, got %d (%v)", len(hits), err)
	}
	hits, err = p.SearchByID(ctx, "404")
	if err != nil || len(hits) != 0 {
		t.Errorf("absent id: expected empty result, got %d (%v)", len(hits), err)
	}
}

func TestProvider_Unauthenticated(t *testing.T) {
	p, _, _ := testProvider(t, fhir.TypePatient)

	if _, err := p.Read(context.Background(), "1", nil); err != fhir.ErrUnauthenticated {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := p.Create(context.Background(), doe()); err != fhir.ErrUnauthenticated {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := p.SearchAll(context.Background()); err != fhir.ErrUnauthenticated {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestProvider_SessionIsolation(t *testing.T) {
	store := session.NewStore(zerolog.Nop())
	p := NewProvider(fhir.TypePatient, store, nil, zerolog.Nop())

	ctxA := sessionContext(store, "A", "https://pod.example/a#me")
	ctxB := sessionContext(store, "B", "https://pod.example/b#me")

	if _, err := p.Create(ctxA, doe()); err != nil {
		t.Fatalf("create in A: %v", err)
	}

	fromB, err := p.SearchAll(ctxB)
	if err != nil {
		t.Fatalf("search in B: %v", err)
	}
	if len(fromB) != 0 {
		t.Errorf("session B must not see session A's resources, got %d", len(fromB))
	}
	if _, err := p.Read(ctxB, "1", nil); !fhir.IsNotFound(err) {
		t.Errorf("session B read of A's resource: expected not found, got %v", err)
	}
}

func TestProvider_StoreInSession(t *testing.T) {
	store := session.NewStore(zerolog.Nop())
	p := NewProvider(fhir.TypePatient, store, nil, zerolog.Nop())
	s := store.GetOrCreate("k")

	// with id: keeps it
	withID := doe()
	withID.SetID("pod-1")
	p.StoreInSession(s, withID)
	if got := s.Get(fhir.TypePatient, "pod-1", nil); got == nil {
		t.Error("expected resource stored under its own id")
	}

	// without id: server-assigned
	p.StoreInSession(s, doe())
	if got := s.Get(fhir.TypePatient, "1", nil); got == nil {
		t.Error("expected resource stored under assigned id 1")
	}
}
