package board

import (
	"encoding/json"
	"fmt"
	"math"
)

// WinLength é o tamanho mínimo da linha vencedora (5 em linha)
const WinLength = 5

// Slot identifica a posição do jogador na partida (não é o userId)
type Slot uint8

const (
	None  Slot = 0
	Slot1 Slot = 1
	Slot2 Slot = 2
)

// Opponent retorna o slot adversário
func (s Slot) Opponent() Slot {
	switch s {
	case Slot1:
		return Slot2
	case Slot2:
		return Slot1
	default:
		return None
	}
}

func (s Slot) Valid() bool { return s == Slot1 || s == Slot2 }

func (s Slot) String() string {
	switch s {
	case Slot1:
		return "slot1"
	case Slot2:
		return "slot2"
	default:
		return "none"
	}
}

// Limites das coordenadas: faixa de int32, a mesma das colunas last_x/last_y no Postgres
const (
	MinCoord = math.MinInt32
	MaxCoord = math.MaxInt32
)

// Point é uma coordenada do tabuleiro infinito (x, y com sinal)
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// InRange informa se as duas coordenadas cabem em [MinCoord, MaxCoord]
func (p Point) InRange() bool {
	return p.X >= MinCoord && p.X <= MaxCoord && p.Y >= MinCoord && p.Y <= MaxCoord
}

// Stone é uma pedra colocada, usada na serialização do tabuleiro
type Stone struct {
	X    int  `json:"x"`
	Y    int  `json:"y"`
	Slot Slot `json:"slot"`
}

type boardErr string

func (e boardErr) Error() string { return string(e) }

const (
	ErrCellOccupied = boardErr("cell occupied")
	ErrOutOfRange   = boardErr("coordinate out of range")
)

// eixos: horizontal, vertical e as duas diagonais
var axes = [4]Point{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

// Board é a representação esparsa do tabuleiro: só as células ocupadas existem no mapa.
// order guarda a sequência das jogadas para serialização determinística.
type Board struct {
	cells map[Point]Slot
	order []Point
}

func New() *Board {
	return &Board{cells: make(map[Point]Slot)}
}

// Place registra a pedra; uma célula ocupada nunca é sobrescrita
func (b *Board) Place(p Point, s Slot) error {
	if !s.Valid() {
		return fmt.Errorf("place %s: invalid slot %d", p, s)
	}
	if !p.InRange() {
		return ErrOutOfRange
	}
	if _, taken := b.cells[p]; taken {
		return ErrCellOccupied
	}
	b.cells[p] = s
	b.order = append(b.order, p)
	return nil
}

// At retorna o ocupante da célula (None quando vazia)
func (b *Board) At(p Point) Slot { return b.cells[p] }

func (b *Board) Occupied(p Point) bool {
	_, ok := b.cells[p]
	return ok
}

func (b *Board) Len() int { return len(b.order) }

// CheckWin avalia apenas a coordenada recém-jogada: para cada eixo conta as pedras
// consecutivas do slot nos dois sentidos, começando em 1. Linhas maiores que 5 também vencem.
func (b *Board) CheckWin(p Point, s Slot) bool {
	if b.cells[p] != s || !s.Valid() {
		return false
	}
	for _, d := range axes {
		if b.run(p, d, s) >= WinLength {
			return true
		}
	}
	return false
}

func (b *Board) run(p, d Point, s Slot) int {
	count := 1
	for _, dir := range [2]Point{d, {-d.X, -d.Y}} {
		for q, ok := step(p, dir); ok && b.cells[q] == s; q, ok = step(q, dir) {
			count++
		}
	}
	return count
}

// step avança uma casa em d; false na borda, sem estourar o inteiro
func step(q, d Point) (Point, bool) {
	if (d.X > 0 && q.X >= MaxCoord) || (d.X < 0 && q.X <= MinCoord) ||
		(d.Y > 0 && q.Y >= MaxCoord) || (d.Y < 0 && q.Y <= MinCoord) {
		return q, false
	}
	return Point{q.X + d.X, q.Y + d.Y}, true
}

// Stones retorna as pedras na ordem em que foram jogadas
func (b *Board) Stones() []Stone {
	out := make([]Stone, 0, len(b.order))
	for _, p := range b.order {
		out = append(out, Stone{X: p.X, Y: p.Y, Slot: b.cells[p]})
	}
	return out
}

// Clone faz cópia profunda (usado pelas unidades de trabalho antes de mutar)
func (b *Board) Clone() *Board {
	c := &Board{
		cells: make(map[Point]Slot, len(b.cells)),
		order: append([]Point(nil), b.order...),
	}
	for k, v := range b.cells {
		c.cells[k] = v
	}
	return c
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Stones())
}

// UnmarshalJSON reconstrói o tabuleiro repetindo as jogadas; entradas duplicadas são rejeitadas
func (b *Board) UnmarshalJSON(data []byte) error {
	var stones []Stone
	if err := json.Unmarshal(data, &stones); err != nil {
		return err
	}
	nb := New()
	for _, st := range stones {
		if err := nb.Place(Point{X: st.X, Y: st.Y}, st.Slot); err != nil {
			return fmt.Errorf("decode board: %w", err)
		}
	}
	*b = *nb
	return nil
}
