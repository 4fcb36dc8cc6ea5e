package compose

import (
	"encoding/json"
	"strings"
	"text/template"

	"github.com/pixelpress/api/internal/model"
)

// Timeline of the synthesized composition, in frames at 30 fps
const (
	SynthFPS            = 30
	SynthWidth          = 1080
	SynthHeight         = 1920
	SynthDurationFrames = 450
	taglineStartFrame   = 90
	ctaStartFrame       = 270
)

// Square brackets keep the template delimiters clear of JSX braces.
var synthTemplate = template.Must(template.New("index.jsx").
	Delims("[[", "]]").
	Funcs(template.FuncMap{"js": jsString}).
	Parse(synthSource))

const synthSource = `import {Composition, useCurrentFrame, useVideoConfig, interpolate, spring} from 'remotion';
import React from 'react';

const brand = {
  name: [[ js .Brand.Name ]],
  tagline: [[ js .Brand.Tagline ]],
  cta: [[ js .Brand.CTA ]],
  primary: [[ js .Brand.PrimaryColor ]],
  secondary: [[ js .Brand.SecondaryColor ]],
  accent: [[ js .Brand.AccentColor ]],
};

const Video = () => {
  const frame = useCurrentFrame();
  const {fps} = useVideoConfig();

  const logoSpring = spring({frame, fps, config: {damping: 100, stiffness: 200}});
  const logoOpacity = interpolate(frame, [0, 30], [0, 1]);
  const taglineOpacity = interpolate(frame, [[ "[" ]][[ .TaglineStart ]], [[ .TaglineIn ]], [[ .TaglineOut ]], [[ .CTAStart ]]], [0, 1, 1, 0]);
  const taglineY = interpolate(frame, [[ "[" ]][[ .TaglineStart ]], [[ .TaglineIn ]]], [50, 0]);
  const ctaOpacity = interpolate(frame, [[ "[" ]][[ .CTAStart ]], [[ .CTAIn ]]], [0, 1]);
  const ctaScale = 1 + Math.sin(frame * 0.1) * 0.05;

  return (
    <div style={{
      flex: 1,
      background: ` + "`linear-gradient(135deg, ${brand.primary} 0%, ${brand.secondary} 100%)`" + `,
      display: 'flex',
      flexDirection: 'column',
      alignItems: 'center',
      justifyContent: 'center',
      fontSize: 60,
      color: 'white',
      fontFamily: 'Arial, sans-serif'
    }}>
      {frame < [[ .TaglineStart ]] && (
        <div style={{transform: ` + "`scale(${logoSpring})`" + `, opacity: logoOpacity, fontSize: 120, fontWeight: 900, textShadow: '0 0 40px rgba(255,255,255,0.5)', color: 'white'}}>
          {brand.name}
        </div>
      )}
      {frame >= [[ .TaglineStart ]] && frame < [[ .CTAStart ]] && (
        <div style={{opacity: taglineOpacity, transform: ` + "`translateY(${taglineY}px)`" + `, fontSize: 50, fontWeight: 700, textAlign: 'center', padding: '0 50px', maxWidth: '90%'}}>
          {brand.tagline}
        </div>
      )}
      {frame >= [[ .CTAStart ]] && (
        <div style={{opacity: ctaOpacity, transform: ` + "`scale(${ctaScale})`" + `, fontSize: 70, fontWeight: 900, color: brand.accent, textShadow: ` + "`0 0 30px ${brand.accent}`" + `, backgroundColor: 'white', padding: '20px 60px', borderRadius: '50px'}}>
          {brand.cta}
        </div>
      )}
    </div>
  );
};

export const RemotionRoot = () => {
  return (
    <Composition
      id=[[ js .ID ]]
      component={Video}
      durationInFrames={[[ .Duration ]]}
      fps={[[ .FPS ]]}
      width={[[ .Width ]]}
      height={[[ .Height ]]}
    />
  );
};
`

type synthData struct {
	Brand        model.Brand
	ID           string
	FPS          int
	Width        int
	Height       int
	Duration     int
	TaglineStart int
	TaglineIn    int
	TaglineOut   int
	CTAStart     int
	CTAIn        int
}

// Synthesize generates the default three-scene composition for brand:
// brand name entrance, tagline, then a pulsing call to action.
func Synthesize(brand model.Brand) string {
	data := synthData{
		Brand:        brand,
		ID:           SynthesizedCompositionID,
		FPS:          SynthFPS,
		Width:        SynthWidth,
		Height:       SynthHeight,
		Duration:     SynthDurationFrames,
		TaglineStart: taglineStartFrame,
		TaglineIn:    taglineStartFrame + 30,
		TaglineOut:   ctaStartFrame - 30,
		CTAStart:     ctaStartFrame,
		CTAIn:        ctaStartFrame + 30,
	}

	var b strings.Builder
	if err := synthTemplate.Execute(&b, data); err != nil {
		// The template is static and every field is a plain value.
		panic("compose: synthesize template: " + err.Error())
	}
	return b.String()
}

// jsString renders s as a JavaScript string literal
func jsString(s string) string {
	out, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}
