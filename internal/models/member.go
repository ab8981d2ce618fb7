package models

import "time"

type Game struct {
	ID               string    `bson:"id,omitempty" json:"id"`
	Name             string    `bson:"name" json:"name"`
	MoneyInExchange  float64   `bson:"money_in_exchange" json:"money_in_exchange"`
	MoneyOutExchange float64   `bson:"money_out_exchange" json:"money_out_exchange"`
	ChargeFee        int64     `bson:"charge_fee" json:"charge_fee"`
	GameCoinFee      float64   `bson:"game_coin_fee" json:"game_coin_fee"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

type Member struct {
	ID          string   `bson:"id,omitempty" json:"id"`
	GameID      string   `bson:"game_id" json:"game_id"`
	Nickname    string   `bson:"nickname" json:"nickname"`
	Sex         string   `bson:"sex,omitempty" json:"sex,omitempty"`
	Accounts    []string `bson:"accounts" json:"accounts"`
	SockPuppets []string `bson:"sock_puppets" json:"sock_puppets"`
	Phones      []string `bson:"phones" json:"phones"`

	FirstCommunicationTime   *time.Time `bson:"first_communication_time,omitempty" json:"first_communication_time,omitempty"`
	FirstCommunicationWay    string     `bson:"first_communication_way,omitempty" json:"first_communication_way,omitempty"`
	FirstCommunicationAmount int64      `bson:"first_communication_amount,omitempty" json:"first_communication_amount,omitempty"`

	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`

	// Players is only filled by reads that join them.
	Players []Player `bson:"player,omitempty" json:"players,omitempty"`
}

// Player is a member's in-game character.
type Player struct {
	ID        string    `bson:"id,omitempty" json:"id"`
	MemberID  string    `bson:"member_id" json:"member_id"`
	GameID    string    `bson:"game_id" json:"game_id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
