package service

import (
	"context"
	"time"

	"github.com/navid-fn/tradedesk/internal/models"
	"github.com/navid-fn/tradedesk/internal/pipeline"
	"github.com/navid-fn/tradedesk/internal/storage"
)

type MemberInput struct {
	GameID      string   `json:"game_id"`
	Nickname    string   `json:"nickname"`
	Sex         string   `json:"sex"`
	Accounts    []string `json:"accounts"`
	SockPuppets []string `json:"sock_puppets"`
	Phones      []string `json:"phones"`

	FirstCommunicationTime   *time.Time `json:"first_communication_time"`
	FirstCommunicationWay    string     `json:"first_communication_way"`
	FirstCommunicationAmount int64      `json:"first_communication_amount"`
	Description              string     `json:"description"`
}

// MemberUpdate is the editable profile of a member. Nil fields are left alone.
type MemberUpdate struct {
	Nickname    *string `json:"nickname"`
	Sex         *string `json:"sex"`
	Description *string `json:"description"`
}

type MemberQuery struct {
	Page
	GameID     string `form:"game_id"`
	Nickname   string `form:"nickname"`
	Account    string `form:"accounts"`
	SockPuppet string `form:"sock_puppets"`
	Phone      string `form:"phones"`
}

type PlayerInput struct {
	MemberID string `json:"member_id"`
	GameID   string `json:"game_id"`
	Name     string `json:"name"`
}

// MemberList names a list field of a member that can grow and shrink one
// value at a time.
type MemberList string

const (
	MemberAccounts    MemberList = "accounts"
	MemberSockPuppets MemberList = "sock_puppets"
	MemberPhones      MemberList = "phones"
)

func (l MemberList) Valid() bool {
	return l == MemberAccounts || l == MemberSockPuppets || l == MemberPhones
}

type MemberService struct {
	members storage.Collection
	players storage.Collection
	opts    options
}

func NewMemberService(p storage.Provider, opts ...Option) (*MemberService, error) {
	cs, err := collections(p, storage.Members, storage.Players)
	if err != nil {
		return nil, err
	}
	return &MemberService{members: cs[0], players: cs[1], opts: newOptions(opts)}, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (s *MemberService) Create(ctx context.Context, in MemberInput) (*models.Member, error) {
	if in.Nickname == "" {
		return nil, invalid("nickname is required")
	}
	return create[models.Member](ctx, s.members, models.Member{
		GameID:                   in.GameID,
		Nickname:                 in.Nickname,
		Sex:                      in.Sex,
		Accounts:                 nonNil(in.Accounts),
		SockPuppets:              nonNil(in.SockPuppets),
		Phones:                   nonNil(in.Phones),
		FirstCommunicationTime:   in.FirstCommunicationTime,
		FirstCommunicationWay:    in.FirstCommunicationWay,
		FirstCommunicationAmount: in.FirstCommunicationAmount,
		Description:              in.Description,
		CreatedAt:                s.opts.now(),
	})
}

func withPlayers() pipeline.Stage {
	return pipeline.Lookup(storage.Players, "id",
		pipeline.On(pipeline.Eq(pipeline.Field("member_id"), pipeline.Var("id"))),
		pipeline.Then(pipeline.Sort(pipeline.Asc("created_at"))),
		pipeline.As("player"),
	)
}

// Get returns the member with its players.
func (s *MemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	return getOne[models.Member](ctx, s.members, id, withPlayers())
}

// List matches the game exactly and the other fields as substrings; a list
// field matches when any of its values does.
func (s *MemberService) List(ctx context.Context, q MemberQuery) (*models.PaginatedResult[models.Member], error) {
	conds := pipeline.Equal(map[string]any{"game_id": optional(q.GameID)})
	conds = append(conds, pipeline.Fuzzy(map[string]string{"nickname": q.Nickname})...)
	conds = append(conds,
		pipeline.FuzzyAny("accounts", q.Account),
		pipeline.FuzzyAny("sock_puppets", q.SockPuppet),
		pipeline.FuzzyAny("phones", q.Phone),
	)
	return listOf[models.Member](ctx, s.members, storage.ListQuery{
		Pipeline: pipeline.Pipeline{pipeline.MatchAll(conds...), withPlayers()},
		Page:     q.Page.Page,
		PageSize: q.PageSize,
		Sort:     []pipeline.SortField{pipeline.Desc("created_at")},
	})
}

func (s *MemberService) Update(ctx context.Context, id string, in MemberUpdate) (*models.Member, error) {
	patch := storage.Document{}
	if in.Nickname != nil {
		if *in.Nickname == "" {
			return nil, invalid("nickname must not be empty")
		}
		patch["nickname"] = *in.Nickname
	}
	if in.Sex != nil {
		patch["sex"] = *in.Sex
	}
	if in.Description != nil {
		patch["description"] = *in.Description
	}
	doc, err := s.members.Update(ctx, storage.ByID(id), patch, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Member](doc)
}

// AddValue appends value to one of the member's list fields.
func (s *MemberService) AddValue(ctx context.Context, id string, list MemberList, value string) (*models.Member, error) {
	return s.changeList(ctx, id, list, value, storage.OpPush)
}

// RemoveValue removes every occurrence of value from the list field. Removing
// a value that is not there is NoChange.
func (s *MemberService) RemoveValue(ctx context.Context, id string, list MemberList, value string) (*models.Member, error) {
	return s.changeList(ctx, id, list, value, storage.OpPull)
}

func (s *MemberService) changeList(ctx context.Context, id string, list MemberList, value string, op storage.UpdateOp) (*models.Member, error) {
	if !list.Valid() {
		return nil, invalid("unknown member list %q", list)
	}
	if value == "" {
		return nil, invalid("value is required")
	}
	doc, err := s.members.Update(ctx, storage.ByID(id), storage.Document{string(list): value}, op)
	if err != nil {
		return nil, err
	}
	return decode[models.Member](doc)
}

func (s *MemberService) Delete(ctx context.Context, id string) (*models.Member, error) {
	doc, err := s.members.Delete(ctx, storage.ByID(id))
	if err != nil {
		return nil, err
	}
	return decode[models.Member](doc)
}

func (s *MemberService) CreatePlayer(ctx context.Context, in PlayerInput) (*models.Player, error) {
	if in.MemberID == "" || in.Name == "" {
		return nil, invalid("member_id and name are required")
	}
	if _, err := getOne[models.Member](ctx, s.members, in.MemberID); err != nil {
		return nil, err
	}
	return create[models.Player](ctx, s.players, models.Player{
		MemberID:  in.MemberID,
		GameID:    in.GameID,
		Name:      in.Name,
		CreatedAt: s.opts.now(),
	})
}

func (s *MemberService) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	return getOne[models.Player](ctx, s.players, id)
}

func (s *MemberService) RenamePlayer(ctx context.Context, id, name string) (*models.Player, error) {
	if name == "" {
		return nil, invalid("name is required")
	}
	doc, err := s.players.Update(ctx, storage.ByID(id), storage.Document{"name": name}, storage.OpSet)
	if err != nil {
		return nil, err
	}
	return decode[models.Player](doc)
}

func (s *MemberService) DeletePlayer(ctx context.Context, id string) (*models.Player, error) {
	doc, err := s.players.Delete(ctx, storage.ByID(id))
	if err != nil {
		return nil, err
	}
	return decode[models.Player](doc)
}
