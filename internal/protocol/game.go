package protocol

// Point is a grid coordinate as carried by SHIP_POSITIONS, STRIKE and
// STRIKE_RESULT payloads.
type Point struct {
	X, Y int32
}

// NewReady creates a READY packet carrying a single sentinel value.
func NewReady(sentinel int32) *Packet {
	return New(TypeReady, sentinel)
}

// NewShipPositions creates a SHIP_POSITIONS packet with the points
// flattened as x0, y0, x1, y1, ...
func NewShipPositions(points []Point) *Packet {
	payload := make([]int32, 0, 2*len(points))
	for _, pt := range points {
		payload = append(payload, pt.X, pt.Y)
	}
	return &Packet{typ: TypeShipPositions, payload: payload}
}

// NewStrike creates a STRIKE packet aimed at target.
func NewStrike(target Point) *Packet {
	return New(TypeStrike, target.X, target.Y)
}

// NewStrikeResult creates a STRIKE_RESULT packet: (hit, x, y).
func NewStrikeResult(hit bool, target Point) *Packet {
	var h int32
	if hit {
		h = 1
	}
	return New(TypeStrikeResult, h, target.X, target.Y)
}

// NewGameOver creates a GAME_OVER packet carrying a single sentinel value.
func NewGameOver(sentinel int32) *Packet {
	return New(TypeGameOver, sentinel)
}

// NewYourTurn creates a YOUR_TURN packet.
func NewYourTurn() *Packet {
	return New(TypeYourTurn)
}

// Points interprets the payload as (x, y) pairs. For STRIKE_RESULT the
// leading hit flag is skipped. A trailing odd field is ignored.
func (p *Packet) Points() []Point {
	fields := p.payload
	if p.typ == TypeStrikeResult && len(fields) > 0 {
		fields = fields[1:]
	}
	points := make([]Point, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		points = append(points, Point{X: fields[i], Y: fields[i+1]})
	}
	return points
}

// Hit reports the hit flag of a STRIKE_RESULT packet.
func (p *Packet) Hit() bool {
	return p.typ == TypeStrikeResult && p.Field(0) != 0
}
