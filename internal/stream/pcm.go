package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/sonroyaalmerol/jukebot/internal/utils"
)

// PCMStreamer decodes a remote audio source into s16le stereo 48 kHz PCM,
// readable from Stdout. The decode goroutine owns every libav resource and
// frees them when it exits.
type PCMStreamer struct {
	fc          *astiav.FormatContext
	audioStream *astiav.Stream
	decCtx      *astiav.CodecContext
	swr         *astiav.SoftwareResampleContext
	srcFrame    *astiav.Frame
	dstFrame    *astiav.Frame

	cancel context.CancelFunc
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan struct{}

	errMu  sync.Mutex
	runErr error
}

// StartPCMStream opens inputURL and starts decoding in the background. Errors
// opening the source or finding an audio stream are returned directly.
func StartPCMStream(ctx context.Context, inputURL string) (*PCMStreamer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	_ = dict.Set("reconnect", "1", 0)
	_ = dict.Set("reconnect_streamed", "1", 0)
	_ = dict.Set("reconnect_delay_max", "5", 0)
	_ = dict.Set("headers", utils.BuildFFmpegHeaders(nil), 0)

	if err := fc.OpenInput(inputURL, nil, dict); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open input: %w", err)
	}
	closeInput := func() {
		fc.CloseInput()
		fc.Free()
	}

	if err := fc.FindStreamInfo(nil); err != nil {
		closeInput()
		return nil, fmt.Errorf("find stream info: %w", err)
	}

	st, codec, err := fc.FindBestStream(astiav.MediaTypeAudio, -1, -1)
	if err != nil {
		closeInput()
		return nil, fmt.Errorf("find best audio stream: %w", err)
	}
	if st == nil || codec == nil {
		closeInput()
		return nil, errors.New("no audio stream found")
	}

	decCtx := astiav.AllocCodecContext(codec)
	if decCtx == nil {
		closeInput()
		return nil, errors.New("alloc decoder context")
	}
	if err := decCtx.FromCodecParameters(st.CodecParameters()); err != nil {
		decCtx.Free()
		closeInput()
		return nil, fmt.Errorf("decoder from params: %w", err)
	}
	decCtx.SetTimeBase(st.TimeBase())
	if err := decCtx.Open(codec, nil); err != nil {
		decCtx.Free()
		closeInput()
		return nil, fmt.Errorf("open decoder: %w", err)
	}

	swr := astiav.AllocSoftwareResampleContext()
	srcFrame := astiav.AllocFrame()
	dstFrame := astiav.AllocFrame()
	if swr == nil || srcFrame == nil || dstFrame == nil {
		if swr != nil {
			swr.Free()
		}
		if srcFrame != nil {
			srcFrame.Free()
		}
		if dstFrame != nil {
			dstFrame.Free()
		}
		decCtx.Free()
		closeInput()
		return nil, errors.New("alloc resampler")
	}

	pr, pw := io.Pipe()
	runCtx, cancel := context.WithCancel(ctx)
	ps := &PCMStreamer{
		fc:          fc,
		audioStream: st,
		decCtx:      decCtx,
		swr:         swr,
		srcFrame:    srcFrame,
		dstFrame:    dstFrame,
		cancel:      cancel,
		pr:          pr,
		pw:          pw,
		done:        make(chan struct{}),
	}
	go ps.run(runCtx)
	return ps, nil
}

func (s *PCMStreamer) Stdout() io.Reader { return s.pr }

// Close stops decoding. It is safe to call more than once.
func (s *PCMStreamer) Close() {
	s.cancel()
	_ = s.pr.Close()
}

// Wait blocks until the decode goroutine released its resources.
func (s *PCMStreamer) Wait() { <-s.done }

// Err returns why decoding stopped early, if it did.
func (s *PCMStreamer) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.runErr
}

func (s *PCMStreamer) run(ctx context.Context) {
	packet := astiav.AllocPacket()
	defer func() {
		packet.Free()
		s.srcFrame.Free()
		s.dstFrame.Free()
		s.swr.Free()
		s.decCtx.Free()
		s.fc.CloseInput()
		s.fc.Free()
		_ = s.pw.CloseWithError(s.Err())
		close(s.done)
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		packet.Unref()
		if err := s.fc.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				_ = s.decCtx.SendPacket(nil)
				s.setErr(s.receiveFrames())
				return
			}
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			s.setErr(fmt.Errorf("read frame: %w", err))
			return
		}
		if packet.StreamIndex() != s.audioStream.Index() {
			continue
		}

		if err := s.decCtx.SendPacket(packet); err != nil && !errors.Is(err, astiav.ErrEagain) {
			s.setErr(fmt.Errorf("send packet: %w", err))
			return
		}
		if err := s.receiveFrames(); err != nil {
			s.setErr(err)
			return
		}
	}
}

func (s *PCMStreamer) receiveFrames() error {
	for {
		s.srcFrame.Unref()
		if err := s.decCtx.ReceiveFrame(s.srcFrame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		if err := s.convertAndWrite(s.srcFrame); err != nil {
			return err
		}
	}
}

func (s *PCMStreamer) convertAndWrite(src *astiav.Frame) error {
	s.dstFrame.Unref()
	// room for resampling up from lower source rates
	capacity := src.NbSamples()
	if sr := src.SampleRate(); sr > 0 && sr < sampleRate {
		capacity = capacity*sampleRate/sr + 32
	}
	s.dstFrame.SetNbSamples(capacity)
	s.dstFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	s.dstFrame.SetSampleRate(sampleRate)
	s.dstFrame.SetSampleFormat(astiav.SampleFormatS16)
	if err := s.dstFrame.AllocBuffer(0); err != nil {
		return fmt.Errorf("alloc pcm buffer: %w", err)
	}

	if err := s.swr.ConvertFrame(src, s.dstFrame); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	if s.dstFrame.NbSamples() == 0 {
		return nil
	}

	b, err := s.dstFrame.Data().Bytes(1)
	if err != nil {
		return fmt.Errorf("pcm bytes: %w", err)
	}
	if _, err := s.pw.Write(b); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			slog.Debug("pcm reader closed, stopping decode")
			return nil
		}
		return err
	}
	return nil
}

func (s *PCMStreamer) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.runErr == nil {
		s.runErr = err
	}
}
